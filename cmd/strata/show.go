package main

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/orm"
	"github.com/leeforge/strata/utils"
)

type fieldDescription struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Type string `json:"type"`
}

type classDescription struct {
	Specifier string             `json:"specifier"`
	Abstract  bool               `json:"abstract"`
	Fields    []fieldDescription `json:"fields"`
	Methods   []string           `json:"methods,omitempty"`
}

type opaqueDescription struct {
	Specifier string `json:"specifier"`
	GoType    string `json:"goType"`
}

func newShowCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show type:name",
		Short: "Look up one entry and print it as JSON",
		Example: `  strata show config:site
  strata show model:post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := container.Parse(args[0])
			if err != nil {
				return err
			}
			return withApplication(cmd.Context(), global, func(app *application) error {
				value, err := app.Container().LookupSpecifier(spec)
				if err != nil {
					return err
				}
				return utils.PrintJson(cmd.OutOrStdout(), describe(spec, value))
			})
		},
	}
}

// describe renders value for printing. Plain data prints as itself, model
// classes as their schema, and anything else as its Go type.
func describe(spec container.Specifier, value any) any {
	if class, ok := value.(*orm.ModelClass); ok {
		return describeClass(spec, class)
	}
	if isPlainData(value) {
		return value
	}
	return opaqueDescription{Specifier: spec.String(), GoType: fmt.Sprintf("%T", value)}
}

func describeClass(spec container.Specifier, class *orm.ModelClass) classDescription {
	schema := class.Schema()
	desc := classDescription{
		Specifier: spec.String(),
		Abstract:  class.IsAbstract(),
		Fields:    []fieldDescription{},
	}
	for _, name := range schema.Names() {
		d, _ := schema.Descriptor(name)
		desc.Fields = append(desc.Fields, fieldDescription{
			Name: name,
			Kind: d.Kind().String(),
			Type: d.LogicalType(),
		})
	}
	if !class.IsAbstract() {
		desc.Methods = class.Methods()
	}
	return desc
}

func isPlainData(value any) bool {
	if value == nil {
		return true
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
