package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/daimatz/jjvm/pkg/classfile"
)

func newDumpCmd() *cobra.Command {
	var dumpFormat string

	cmd := &cobra.Command{
		Use:   "dump <file.class>",
		Short: "Print the structure and bytecode of a class file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := classfile.ParseFile(args[0])
			if err != nil {
				return err
			}
			model, err := newClassDump(cf)
			if err != nil {
				return err
			}

			switch dumpFormat {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(model); err != nil {
					return fmt.Errorf("encode yaml: %w", err)
				}
				return enc.Close()
			case "text":
				return model.writeText(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unknown format %q (expected text or yaml)", dumpFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format: text, yaml")

	return cmd
}

type classDump struct {
	Name       string       `yaml:"name"`
	Super      string       `yaml:"super,omitempty"`
	Interfaces []string     `yaml:"interfaces,omitempty"`
	Version    string       `yaml:"version"`
	Source     string       `yaml:"source,omitempty"`
	Fields     []string     `yaml:"fields,omitempty"`
	Methods    []methodDump `yaml:"methods,omitempty"`
}

type methodDump struct {
	Name      string   `yaml:"name"`
	MaxStack  uint16   `yaml:"max_stack,omitempty"`
	MaxLocals uint16   `yaml:"max_locals,omitempty"`
	Code      []string `yaml:"code,omitempty"`
}

func newClassDump(cf *classfile.ClassFile) (*classDump, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, err
	}
	d := &classDump{
		Name:       name,
		Super:      cf.SuperClassName(),
		Interfaces: cf.InterfaceNames(),
		Version:    fmt.Sprintf("%d.%d", cf.MajorVersion, cf.MinorVersion),
		Source:     cf.SourceFile(),
	}
	for _, f := range cf.Fields {
		d.Fields = append(d.Fields, fmt.Sprintf("%s %s", f.Name, f.Type.Descriptor()))
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		md := methodDump{Name: m.Name + m.Descriptor.Raw}
		if code := m.Code(); code != nil {
			md.MaxStack, md.MaxLocals = code.MaxStack, code.MaxLocals
			for _, in := range code.Instructions {
				line := in.String()
				if ln := code.LineNumber(in.Offset); ln > 0 {
					line = fmt.Sprintf("%s  // line %d", line, ln)
				}
				md.Code = append(md.Code, line)
			}
		}
		d.Methods = append(d.Methods, md)
	}
	return d, nil
}

func (d *classDump) writeText(w io.Writer) error {
	fmt.Fprintf(w, "class %s (version %s)\n", d.Name, d.Version)
	if d.Super != "" {
		fmt.Fprintf(w, "  extends %s\n", d.Super)
	}
	for _, i := range d.Interfaces {
		fmt.Fprintf(w, "  implements %s\n", i)
	}
	if d.Source != "" {
		fmt.Fprintf(w, "  source %s\n", d.Source)
	}
	for _, f := range d.Fields {
		fmt.Fprintf(w, "  field %s\n", f)
	}
	for _, m := range d.Methods {
		fmt.Fprintf(w, "  method %s", m.Name)
		if len(m.Code) == 0 {
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, " stack=%d locals=%d\n", m.MaxStack, m.MaxLocals)
		for _, line := range m.Code {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	return nil
}
