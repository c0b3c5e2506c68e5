package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/daimatz/jjvm/pkg/classpath"
	"github.com/daimatz/jjvm/pkg/config"
	"github.com/daimatz/jjvm/pkg/native"
	"github.com/daimatz/jjvm/pkg/vm"
)

// traceVerbosity is the commonlog verbosity that shows info messages.
const traceVerbosity = 3

type runOptions struct {
	classPath     []string
	configPath    string
	bootstrap     string
	skipClinit    []string
	maxFrameDepth int
	trace         bool
	verbose       int
	logFile       string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] <Class|path/Class.class> [args...]",
		Short: "Run a class's main method",
		Long: `Run public static void main(String[]) of a class.

The class is given by binary name (pkg/Main or pkg.Main), looked up on the
class path, or as a path to a .class file, whose directory is then put in
front of the class path.

Classes are looked up in the host library first, then the bootstrap archive
(--bootstrap, JAVA_BASE_JMOD or $JAVA_HOME/jmods/java.base.jmod), then the
class path.

Settings are read from jjvm.toml or jjvm.yaml in the current directory or
a parent, or from --config. Flags override file settings.

Examples:
  jjvm run Hello.class
  jjvm run -c build/classes com/example/Main arg1 arg2
  jjvm run --trace -vvvv Hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runClass(c, args[0], args[1:])
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&opts.classPath, "classpath", "c", nil, "class path entries (directories, .jar, .jmod)")
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default: jjvm.toml/jjvm.yaml found upward)")
	flags.StringVar(&opts.bootstrap, "bootstrap", "", "bootstrap class archive, usually java.base.jmod")
	flags.StringSliceVar(&opts.skipClinit, "skip-clinit", nil, "classes whose <clinit> is not run")
	flags.IntVar(&opts.maxFrameDepth, "max-frame-depth", 0, "maximum call depth")
	flags.BoolVar(&opts.trace, "trace", false, "log every method invocation")
	flags.CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity (can be repeated)")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	flags.SetInterspersed(false) // Stop parsing flags after the class

	return cmd
}

// loadConfig reads the configuration file and applies flags given on the
// command line on top of it.
func loadConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	var c *config.Config
	var err error
	if opts.configPath != "" {
		c, err = config.Load(opts.configPath)
	} else {
		c, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("classpath") {
		c.ClassPath = opts.classPath
	}
	if flags.Changed("bootstrap") {
		c.Bootstrap = opts.bootstrap
	}
	if flags.Changed("skip-clinit") {
		c.SkipClinit = opts.skipClinit
	}
	if flags.Changed("max-frame-depth") {
		c.MaxFrameDepth = opts.maxFrameDepth
	}
	if flags.Changed("trace") {
		c.Trace = opts.trace
	}
	if flags.Changed("verbose") {
		c.Verbosity = opts.verbose
	}
	if flags.Changed("log-file") {
		c.LogFile = opts.logFile
	}
	if c.Bootstrap == "" {
		c.Bootstrap = config.FindBootstrap()
	}
	return c, nil
}

// splitTarget turns the run target into a binary class name and, for a
// .class path, the directory to search first.
func splitTarget(target string) (name, dir string) {
	if strings.HasSuffix(target, ".class") {
		return strings.TrimSuffix(filepath.Base(target), ".class"), filepath.Dir(target)
	}
	return strings.ReplaceAll(target, ".", "/"), ""
}

func runClass(c *config.Config, target string, args []string) error {
	verbosity := c.Verbosity
	if c.Trace && verbosity < traceVerbosity {
		verbosity = traceVerbosity
	}
	var logFile *string
	if c.LogFile != "" {
		logFile = &c.LogFile
	}
	commonlog.Configure(verbosity, logFile)

	name, dir := splitTarget(target)
	path := classpath.Path{native.NewLibrary()}
	if c.Bootstrap != "" {
		path = append(path, classpath.NewArchive(c.Bootstrap))
	}
	if dir != "" {
		path = append(path, classpath.Dir(dir))
	}
	path = append(path, classpath.Parse(c.ClassPath...)...)
	if len(c.ClassPath) == 0 && dir == "" {
		path = append(path, classpath.Dir("."))
	}
	commonlog.GetLogger("jjvm").Debugf("class path: %s", path)

	machine := vm.New(path,
		vm.WithNatives(native.Default(os.Stdout, os.Stderr)),
		vm.WithSkipClinit(c.SkipClinit...),
		vm.WithMaxFrameDepth(c.MaxFrameDepth),
		vm.WithTrace(c.Trace),
	)
	if err := machine.Run(name, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
