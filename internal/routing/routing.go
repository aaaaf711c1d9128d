// Package routing reads the service routing configuration: which packages
// and services are exposed, and on which GraphQL root surfaces.
package routing

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 50051
)

// ErrInvalidConfig marks routing configuration problems.
var ErrInvalidConfig = errors.New("routing: invalid configuration")

// Config is the normalized list form of the routing configuration. It is
// never modified by consumers; derived values live in Effective.
type Config struct {
	Packages []*Package
}

// Package configures the services of one protobuf package.
type Package struct {
	Package  string
	Services []*Service
}

// Service configures one service.
type Service struct {
	Service  string
	Query    Selector
	Mutate   Selector
	GRPCOnly *bool
	Exclude  []string
	Host     string
	Port     int
}

// Load reads a YAML or JSON routing configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a routing configuration in list or object form.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// UnmarshalYAML accepts
//
//	- package: helloworld
//	  services:
//	    - {service: Greeter, query: false}
//
// or the object form keyed by package and service name
//
//	helloworld:
//	  Greeter: {query: false}
//
// The original key "name" is accepted for both package and service.
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var pkgs []*Package
		if err := n.Decode(&pkgs); err != nil {
			return err
		}
		c.Packages = pkgs
		return nil
	case yaml.MappingNode:
		c.Packages = nil
		for i := 0; i+1 < len(n.Content); i += 2 {
			pkg := &Package{Package: n.Content[i].Value}
			svcs := n.Content[i+1]
			if svcs.Kind == yaml.ScalarNode && svcs.Tag == "!!null" {
				c.Packages = append(c.Packages, pkg)
				continue
			}
			if svcs.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: package %q must map service names", svcs.Line, pkg.Package)
			}
			for j := 0; j+1 < len(svcs.Content); j += 2 {
				svc := &Service{}
				if body := svcs.Content[j+1]; !(body.Kind == yaml.ScalarNode && body.Tag == "!!null") {
					if err := body.Decode(svc); err != nil {
						return err
					}
				}
				svc.Service = svcs.Content[j].Value
				pkg.Services = append(pkg.Services, svc)
			}
			c.Packages = append(c.Packages, pkg)
		}
		return nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
	}
	return fmt.Errorf("line %d: routing configuration must be a list or a mapping", n.Line)
}

func (p *Package) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Package  string     `yaml:"package"`
		Name     string     `yaml:"name"`
		Services []*Service `yaml:"services"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	p.Package = raw.Package
	if p.Package == "" {
		p.Package = raw.Name
	}
	p.Services = raw.Services
	return nil
}

func (s *Service) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Service  string   `yaml:"service"`
		Name     string   `yaml:"name"`
		Query    Selector `yaml:"query"`
		Mutate   Selector `yaml:"mutate"`
		GRPCOnly *bool    `yaml:"grpcOnly"`
		Exclude  []string `yaml:"exclude"`
		Host     string   `yaml:"host"`
		Port     int      `yaml:"port"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*s = Service{
		Service:  raw.Service,
		Query:    raw.Query,
		Mutate:   raw.Mutate,
		GRPCOnly: raw.GRPCOnly,
		Exclude:  raw.Exclude,
		Host:     raw.Host,
		Port:     raw.Port,
	}
	if s.Service == "" {
		s.Service = raw.Name
	}
	return nil
}

// Lookup returns the configuration of a service, or nil when it is not
// configured.
func (c *Config) Lookup(pkg, service string) *Service {
	for _, p := range c.Packages {
		if p.Package != pkg {
			continue
		}
		for _, s := range p.Services {
			if s.Service == service {
				return s
			}
		}
	}
	return nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}
	seenPkg := map[string]bool{}
	for i, p := range c.Packages {
		if p.Package == "" {
			fail("package #%d has no name", i+1)
		} else if seenPkg[p.Package] {
			fail("package %q is configured twice", p.Package)
		}
		seenPkg[p.Package] = true

		seenSvc := map[string]bool{}
		for j, s := range p.Services {
			if s.Service == "" {
				fail("package %q: service #%d has no name", p.Package, j+1)
				continue
			}
			if seenSvc[s.Service] {
				fail("package %q: service %q is configured twice", p.Package, s.Service)
			}
			seenSvc[s.Service] = true

			if s.Port < 0 || s.Port > 65535 {
				fail("%s.%s: port %d out of range", p.Package, s.Service, s.Port)
			}
			for _, m := range s.Exclude {
				if s.Query.Lists(m) {
					fail("%s.%s: method %q is both queried and excluded", p.Package, s.Service, m)
				}
				if s.Mutate.Lists(m) {
					fail("%s.%s: method %q is both mutated and excluded", p.Package, s.Service, m)
				}
			}
		}
	}
	return errs
}

// Effective is a working copy of a service configuration with derived
// values filled in.
type Effective struct {
	Package string
	Service string
	// Query and Mutate report whether the surface exists for the service.
	Query    bool
	Mutate   bool
	GRPCOnly bool
	Host     string
	Port     int

	query   Selector
	mutate  Selector
	exclude []string
}

// Effective derives the working copy of s. GRPCOnly defaults to true only
// when both query and mutate are explicitly false.
func (s *Service) Effective(pkg string) Effective {
	e := Effective{
		Package: pkg,
		Service: s.Service,
		Query:   s.Query.Allows(),
		Mutate:  s.Mutate.Allows(),
		Host:    s.Host,
		Port:    s.Port,
		query:   s.Query,
		mutate:  s.Mutate,
		exclude: slices.Clone(s.Exclude),
	}
	if s.GRPCOnly != nil {
		e.GRPCOnly = *s.GRPCOnly
	} else {
		e.GRPCOnly = s.Query.IsDisabled() && s.Mutate.IsDisabled()
	}
	if e.Host == "" {
		e.Host = DefaultHost
	}
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	return e
}

// Excluded reports whether method is dropped from every surface.
func (e Effective) Excluded(method string) bool { return slices.Contains(e.exclude, method) }

// Surfaces decides where a method is exposed: listed under query means
// query only, otherwise listed under mutate means mutation only, otherwise
// every open surface.
func (e Effective) Surfaces(method string) (query, mutate bool) {
	if e.GRPCOnly || e.Excluded(method) {
		return false, false
	}
	switch {
	case e.Query && e.query.Lists(method):
		return true, false
	case e.Mutate && e.mutate.Lists(method):
		return false, true
	}
	return e.Query, e.Mutate
}

// Endpoint is the host:port of the service backend.
func (e Effective) Endpoint() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
