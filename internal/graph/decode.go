package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-multierror"

	"taskhdl/internal/diag"
)

type description struct {
	Top   string                     `mapstructure:"top"`
	Tasks map[string]taskDescription `mapstructure:"tasks"`
}

type taskDescription struct {
	Level Level                              `mapstructure:"level"`
	Ports []portDescription                  `mapstructure:"ports"`
	Tasks map[string][]invocationDescription `mapstructure:"tasks"`
	Fifos map[string]fifoDescription         `mapstructure:"fifos"`
}

type portDescription struct {
	Name  string `mapstructure:"name"`
	Cat   string `mapstructure:"cat"`
	Type  string `mapstructure:"type"`
	Width int    `mapstructure:"width"`
}

type invocationDescription struct {
	Step int                       `mapstructure:"step"`
	Args map[string]argDescription `mapstructure:"args"`
}

type argDescription struct {
	Cat  string `mapstructure:"cat"`
	Port string `mapstructure:"port"`
}

type fifoDescription struct {
	Depth      int       `mapstructure:"depth"`
	ConsumedBy *Endpoint `mapstructure:"consumed_by"`
	ProducedBy *Endpoint `mapstructure:"produced_by"`
}

// Parse decodes a JSON task-hierarchy description.
func Parse(data []byte) (*Program, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("graph: %v: %w", err, diag.ErrMalformedDescription)
	}
	return Decode(raw)
}

// Decode builds a Program from a generic description tree such as the
// result of json.Unmarshal. Every unknown argument category is reported.
func Decode(raw map[string]any) (*Program, error) {
	var desc description
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			endpointHook,
			mapstructure.TextUnmarshallerHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &desc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("graph: %v: %w", err, diag.ErrMalformedDescription)
	}
	if desc.Top == "" {
		return nil, fmt.Errorf("graph: missing top task: %w", diag.ErrMalformedDescription)
	}

	var result *multierror.Error
	category := func(where, cat string) Category {
		c, err := ParseCategory(cat)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
		}
		return c
	}

	prog := &Program{Top: desc.Top, Tasks: make(map[string]*Task, len(desc.Tasks))}
	names := make([]string, 0, len(desc.Tasks))
	for name := range desc.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		td := desc.Tasks[name]
		task := &Task{
			Name:     name,
			Level:    td.Level,
			Children: make(map[string][]Invocation, len(td.Tasks)),
			Fifos:    make(map[string]*Fifo, len(td.Fifos)),
		}
		for _, pd := range td.Ports {
			task.Ports = append(task.Ports, Port{
				Name:  pd.Name,
				Cat:   category(fmt.Sprintf("task %s port %s", name, pd.Name), pd.Cat),
				Type:  pd.Type,
				Width: pd.Width,
			})
		}
		for child, invs := range td.Tasks {
			for idx, inv := range invs {
				args := make(map[string]Arg, len(inv.Args))
				for argName, ad := range inv.Args {
					where := fmt.Sprintf("task %s instance %s arg %s", name, InstanceName(child, idx), argName)
					args[argName] = Arg{Cat: category(where, ad.Cat), Port: ad.Port}
				}
				task.Children[child] = append(task.Children[child], Invocation{Step: inv.Step, Args: args})
			}
		}
		for fifoName, fd := range td.Fifos {
			task.Fifos[fifoName] = &Fifo{
				Name:     fifoName,
				Depth:    fd.Depth,
				Producer: fd.ProducedBy,
				Consumer: fd.ConsumedBy,
			}
		}
		prog.Tasks[name] = task
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	if top, ok := prog.Tasks[desc.Top]; ok {
		prog.Ports = top.Ports
	}
	return prog, nil
}

var endpointType = reflect.TypeOf(Endpoint{})

// endpointHook turns a ["task", index] pair into an Endpoint.
func endpointHook(from, to reflect.Type, data any) (any, error) {
	if to != endpointType || from.Kind() != reflect.Slice {
		return data, nil
	}
	pair, ok := data.([]any)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("endpoint must be [task, index], got %v", data)
	}
	task, ok := pair[0].(string)
	if !ok {
		return nil, fmt.Errorf("endpoint task must be a string, got %v", pair[0])
	}
	var index int
	switch v := pair[1].(type) {
	case float64:
		index = int(v)
		if float64(index) != v {
			return nil, fmt.Errorf("endpoint index %v is not an integer", v)
		}
	case int:
		index = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("endpoint index %v: %v", v, err)
		}
		index = int(n)
	default:
		return nil, fmt.Errorf("endpoint index must be a number, got %v", pair[1])
	}
	return Endpoint{Task: task, Index: index}, nil
}
