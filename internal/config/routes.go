package config

import (
	"fmt"
	"os"

	"github.com/andrew-solarstorm/go-packages/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

// RoutesConfig holds the candidate routes the aggregator may split an order across.
type RoutesConfig struct {
	// File is a YAML document listing named routes.
	// Default: "./routes.yaml"
	File   string
	Routes []domain.Route
}

type routesFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Name  string      `yaml:"name"`
	Pools []poolEntry `yaml:"pools"`
}

type poolEntry struct {
	Address  string `yaml:"address"`
	TokenIn  string `yaml:"tokenIn"`
	TokenOut string `yaml:"tokenOut"`
	Variant  string `yaml:"variant"`
	Fee      uint32 `yaml:"fee"`
}

func (c *RoutesConfig) Key() string {
	return ROUTES_CONFIG_KEY
}

func (c *RoutesConfig) Load() error {
	c.File = common.GetEnvOrDefault("ROUTES_FILE", "./routes.yaml")
	raw, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read routes file: %w", err)
	}
	routes, err := ParseRoutes(raw)
	if err != nil {
		return err
	}
	c.Routes = routes
	return nil
}

func (c *RoutesConfig) Validate() error {
	if len(c.Routes) == 0 {
		return fmt.Errorf("invalid routes config: no usable routes in %s", c.File)
	}
	return nil
}

// ParseRoutes decodes a routes document. Entries that do not form a valid route are logged and skipped.
func ParseRoutes(raw []byte) ([]domain.Route, error) {
	var doc routesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}

	routes := make([]domain.Route, 0, len(doc.Routes))
	for i, entry := range doc.Routes {
		route, err := entry.toRoute()
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("name", entry.Name).Msg("[RoutesConfig] skipping route")
			continue
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func (e routeEntry) toRoute() (domain.Route, error) {
	pools := make([]domain.Pool, 0, len(e.Pools))
	for j, p := range e.Pools {
		for _, addr := range []string{p.Address, p.TokenIn, p.TokenOut} {
			if !ethcommon.IsHexAddress(addr) {
				return domain.Route{}, fmt.Errorf("%w: pool %d: bad address %q", domain.ErrInvalidRoute, j, addr)
			}
		}
		variant, err := domain.ParseVariant(p.Variant)
		if err != nil {
			return domain.Route{}, fmt.Errorf("pool %d: %w", j, err)
		}
		pools = append(pools, domain.Pool{
			Address:  ethcommon.HexToAddress(p.Address),
			TokenIn:  ethcommon.HexToAddress(p.TokenIn),
			TokenOut: ethcommon.HexToAddress(p.TokenOut),
			Variant:  variant,
			Fee:      p.Fee,
		})
	}
	return domain.NewRoute(e.Name, pools)
}
