package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/mitchellh/mapstructure"

	"github.com/mlbench/mlbench/internal/awsconf"
	"github.com/mlbench/mlbench/record"
)

// Factory builds a provider from configuration arguments.
type Factory func(args map[string]any) (record.Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider kind available to New. Registering an existing
// kind replaces it.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

// Kinds returns the registered provider kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(registry))
}

// New builds a provider of the given kind. Arguments are decoded into the
// provider's fields by their snake_case names.
func New(kind string, args map[string]any) (record.Provider, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown context provider %q (known: %v)", kind, Kinds())
	}
	p, err := f(args)
	if err != nil {
		return nil, fmt.Errorf("context provider %q: %w", kind, err)
	}
	return p, nil
}

func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "arg",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

// deferred builds its provider on first use so that cloud clients are only
// configured when the provider is evaluated.
type deferred func(ctx context.Context) (record.Provider, error)

func (d deferred) Provide(ctx context.Context) (map[string]any, error) {
	p, err := d(ctx)
	if err != nil {
		return nil, err
	}
	return p.Provide(ctx)
}

type awsArgs struct {
	Region       string `arg:"region"`
	InstanceType string `arg:"instance_type"`
	Repository   string `arg:"repository"`
	Tag          string `arg:"tag"`
	RegistryID   string `arg:"registry_id"`
}

func init() {
	noArgs := func(p record.Provider) Factory {
		return func(args map[string]any) (record.Provider, error) {
			if len(args) > 0 {
				return nil, fmt.Errorf("takes no arguments")
			}
			return p, nil
		}
	}
	Register("system", noArgs(System()))
	Register("cpuarch", noArgs(CPUArch()))
	Register("go_version", noArgs(GoVersion()))
	Register("hostname", noArgs(Hostname()))

	Register("static", func(args map[string]any) (record.Provider, error) {
		return record.Static(args), nil
	})
	Register("goinfo", func(args map[string]any) (record.Provider, error) {
		var a struct {
			Modules []string `arg:"modules"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return GoInfo{Modules: a.Modules}, nil
	})
	Register("git", func(args map[string]any) (record.Provider, error) {
		var a struct {
			Dir    string `arg:"dir"`
			Remote string `arg:"remote"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return GitEnvironment{Dir: a.Dir, Remote: a.Remote}, nil
	})
	Register("cpu", func(args map[string]any) (record.Provider, error) {
		var a struct {
			FrequencyUnit string `arg:"frequency_unit"`
			MemoryUnit    string `arg:"memory_unit"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return CPUInfo{FrequencyUnit: a.FrequencyUnit, MemoryUnit: a.MemoryUnit}, nil
	})
	Register("huggingface", func(args map[string]any) (record.Provider, error) {
		var a struct {
			ModelID      string `arg:"model_id"`
			Token        string `arg:"token"`
			Quantization string `arg:"quantization"`
			BaseURL      string `arg:"base_url"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return HuggingFace{ModelID: a.ModelID, Token: a.Token, Quantization: a.Quantization, BaseURL: a.BaseURL}, nil
	})
	Register("kubernetes", func(args map[string]any) (record.Provider, error) {
		var a struct {
			NodeName string `arg:"node_name"`
		}
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return deferred(func(context.Context) (record.Provider, error) {
			client, err := InClusterClient()
			if err != nil {
				return nil, err
			}
			return KubernetesNode{Client: client, NodeName: a.NodeName}, nil
		}), nil
	})
	Register("ec2", func(args map[string]any) (record.Provider, error) {
		var a awsArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return deferred(func(ctx context.Context) (record.Provider, error) {
			cfg, err := awsconf.Load(ctx, a.Region)
			if err != nil {
				return nil, err
			}
			return EC2Instance{Client: ec2.NewFromConfig(cfg), InstanceType: a.InstanceType}, nil
		}), nil
	})
	Register("ecr", func(args map[string]any) (record.Provider, error) {
		var a awsArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return deferred(func(ctx context.Context) (record.Provider, error) {
			cfg, err := awsconf.Load(ctx, a.Region)
			if err != nil {
				return nil, err
			}
			return ECRImage{Client: ecr.NewFromConfig(cfg), Repository: a.Repository, Tag: a.Tag, RegistryID: a.RegistryID}, nil
		}), nil
	})
	Register("pricing", func(args map[string]any) (record.Provider, error) {
		var a awsArgs
		if err := decode(args, &a); err != nil {
			return nil, err
		}
		return deferred(func(ctx context.Context) (record.Provider, error) {
			cfg, err := awsconf.Load(ctx, awsconf.PricingRegion)
			if err != nil {
				return nil, err
			}
			return Pricing{Client: pricing.NewFromConfig(cfg), InstanceType: a.InstanceType, Region: a.Region}, nil
		}), nil
	})
}
