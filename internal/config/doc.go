// Package config holds the attribute tree that drives a convergence run.
//
// # Overview
//
// Attributes are addressed by dotted paths (openstack.dashboard.http_port).
// A [Tree] has two layers: a default layer selected by platform family and an
// override layer read from attribute files. Lookup resolves the override
// first and falls back to the default. A path with neither is a
// [ConfigurationError]; every path the dashboard consumes is registered in
// [Defaults], so that error only surfaces for programming mistakes.
//
// Values are scalars (string, bool, int, float64), ordered sequences
// ([]any), or nil. Scalars are returned verbatim: "8080" is not an int.
// Typed accessors report a [TypeError] instead of coercing.
//
// # Attribute files
//
// Overrides are loaded from HCL (the primary format), JSON or YAML. Nested
// blocks and objects flatten into dotted paths, so these are equivalent:
//
//	openstack {
//	  dashboard {
//	    http_port = 8080
//	    neutron {
//	      enable_lb = true
//	    }
//	  }
//	}
//
//	{"openstack": {"dashboard": {"http_port": 8080, "neutron": {"enable_lb": true}}}}
//
// A null value is an explicit nil override, which is how a default sequence
// such as openstack.memcached_servers is switched off.
//
// # Example
//
//	result, err := config.LoadFile("/etc/converge/attributes.hcl")
//	if err != nil {
//	    return err
//	}
//	tree, err := config.NewPlatformTree(result.Layer)
//	if err != nil {
//	    return err
//	}
//	port, err := tree.Int("openstack.dashboard.http_port")
package config
