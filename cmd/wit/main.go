// Command wit inspects and prepares interface-types modules: it embeds the
// interface-types and sdk-version custom sections into a compiled Wasm
// binary, and prints what a binary already carries.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/itbinary"
	"github.com/tetratelabs/wit/internal/version"
	"github.com/tetratelabs/wit/internal/wasmparser"
	"github.com/tetratelabs/wit/it"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)

	app := &app{
		fs:     afero.NewOsFs(),
		out:    os.Stdout,
		logger: logger,
	}
	if err := app.rootCmd().Execute(); err != nil {
		app.logger.Error(err)
		os.Exit(1)
	}
}

// app carries the process dependencies, so tests run against an in-memory
// filesystem and a buffer.
type app struct {
	fs     afero.Fs
	out    io.Writer
	logger logrus.FieldLogger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wit",
		Short:         "inspect and prepare interface-types wasm modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(a.embedCmd())
	root.AddCommand(a.embedVersionCmd())
	root.AddCommand(a.itCmd())
	root.AddCommand(a.versionCmd())
	return root
}

func (a *app) embedCmd() *cobra.Command {
	var inPath, outPath, sigPath string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "embed an interface-types section generated from a signature file",
		RunE: func(*cobra.Command, []string) error {
			module, err := afero.ReadFile(a.fs, inPath)
			if err != nil {
				return err
			}
			sigs, err := afero.ReadFile(a.fs, sigPath)
			if err != nil {
				return err
			}
			gen, err := buildResolver(sigs)
			if err != nil {
				return err
			}
			embedded, err := gen.Embed(module)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = inPath
			}
			if err := afero.WriteFile(a.fs, outPath, embedded, 0o644); err != nil {
				return err
			}
			a.logger.WithField("path", outPath).Info("interface types were successfully embedded")
			return nil
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "path to the wasm module")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to the input path)")
	cmd.Flags().StringVarP(&sigPath, "sigs", "s", "", "path to the signature file")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("sigs")
	return cmd
}

func (a *app) embedVersionCmd() *cobra.Command {
	var inPath, outPath, sdkVersion string
	cmd := &cobra.Command{
		Use:   "embed-version",
		Short: "embed the sdk-version section",
		RunE: func(*cobra.Command, []string) error {
			module, err := afero.ReadFile(a.fs, inPath)
			if err != nil {
				return err
			}
			v, err := semver.NewVersion(sdkVersion)
			if err != nil {
				return err
			}
			embedded, err := version.Embed(module, v)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = inPath
			}
			if err := afero.WriteFile(a.fs, outPath, embedded, 0o644); err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{"path": outPath, "version": v.String()}).
				Info("sdk version was successfully embedded")
			return nil
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "path to the wasm module")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (defaults to the input path)")
	cmd.Flags().StringVarP(&sdkVersion, "version", "v", "", "semver triple to embed")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func (a *app) itCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "it <module.wasm>",
		Short: "print the typed interface of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			module, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return err
			}
			ifaces, err := loadInterfaces(module)
			if err != nil {
				return err
			}
			return printInterfaces(a.out, ifaces)
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version <module.wasm>",
		Short: "print the sdk version of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			module, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return err
			}
			v, err := version.Extract(module)
			if err != nil {
				return err
			}
			if v == nil {
				return errdefs.ErrMissingVersion
			}
			fmt.Fprintln(a.out, v.String())
			return nil
		},
	}
}

func loadInterfaces(module []byte) (*it.Interfaces, error) {
	sections, err := wasmparser.ExtractCustomSections(module, itbinary.SectionName)
	if err != nil {
		return nil, err
	}
	payload, err := wasmparser.ExactlyOne(sections, itbinary.SectionName)
	if err != nil {
		return nil, err
	}
	ifaces, err := itbinary.DecodeInterfaces(payload)
	if err != nil {
		return nil, err
	}
	if err := ifaces.Validate(); err != nil {
		return nil, err
	}
	return ifaces, nil
}

// printInterfaces renders records, imports and typed exports the way the
// module's author declared them.
func printInterfaces(out io.Writer, ifaces *it.Interfaces) error {
	for id, t := range ifaces.Types {
		rt, ok := t.(*it.RecordType)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "record %s ; id %d\n", rt.Name, id)
		for _, f := range rt.Fields {
			fmt.Fprintf(out, "  %s: %s\n", f.Name, f.Type)
		}
	}

	for _, imp := range ifaces.Imports {
		ft, err := ifaces.FunctionTypeAt(imp.TypeIndex)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "import %s.%s%s\n", imp.Namespace, imp.Name, signatureString(ft))
	}

	for _, impl := range ifaces.Implementations {
		name, ok := ifaces.ExportByType(impl.CoreFunctionType)
		if !ok {
			continue
		}
		ft, err := ifaces.FunctionTypeAt(impl.AdapterFunctionType)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "export %s%s\n", name, signatureString(ft))
	}
	return nil
}

func signatureString(ft *it.FunctionType) string {
	args := make([]string, len(ft.Arguments))
	for i, arg := range ft.Arguments {
		args[i] = fmt.Sprintf("%s: %s", arg.Name, arg.Type)
	}
	outs := make([]string, len(ft.Outputs))
	for i, out := range ft.Outputs {
		outs[i] = out.String()
	}
	ret := "(" + strings.Join(args, ", ") + ")"
	if len(outs) > 0 {
		ret += " -> " + strings.Join(outs, ", ")
	}
	return ret
}
