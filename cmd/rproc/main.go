package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/I-Al-Istannen/remoteprocess/pkg/config"
	"github.com/I-Al-Istannen/remoteprocess/pkg/logflags"
	"github.com/I-Al-Istannen/remoteprocess/pkg/proc"
)

const version string = "0.1.0"

var (
	// Log enables debug logging.
	Log bool
	// LogOutput is the comma separated list of layers to log.
	LogOutput string
	// Demangle controls demangling of symbol names.
	Demangle bool
	// MaxDepth caps the number of frames printed per thread.
	MaxDepth int
)

func main() {
	conf := config.LoadConfig()
	demangleDefault := true
	if conf.Demangle != nil {
		demangleDefault = *conf.Demangle
	}
	maxDepthDefault := 64
	if conf.MaxStackDepth != nil {
		maxDepthDefault = *conf.MaxStackDepth
	}

	// Main rproc root command.
	rootCommand := &cobra.Command{
		Use:   "rproc",
		Short: "Rproc inspects the threads, stacks and symbols of running processes.",
	}
	rootCommand.PersistentFlags().BoolVarP(&Log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&LogOutput, "log-output", "", conf.Log, "Comma separated list of layers to log (proc,symbol,unwind).")
	rootCommand.PersistentFlags().BoolVarP(&Demangle, "demangle", "d", demangleDefault, "Demangle symbol names.")
	rootCommand.PersistentFlags().IntVarP(&MaxDepth, "max-depth", "", maxDepthDefault, "Maximum number of stack frames per thread.")

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rproc version: %s\n", version)
		},
	}

	// 'threads' subcommand.
	threadsCommand := &cobra.Command{
		Use:   "threads <pid>",
		Short: "Lists the threads of the given process and whether they are running.",
		Args:  cobra.ExactArgs(1),
		RunE:  threadsCmd,
	}

	// 'stacks' subcommand.
	stacksCommand := &cobra.Command{
		Use:   "stacks <pid>",
		Short: "Prints a symbolicated stack trace for every thread of the given process.",
		Args:  cobra.ExactArgs(1),
		RunE:  stacksCmd,
	}

	rootCommand.AddCommand(versionCommand, threadsCommand, stacksCommand)
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

func attach(arg string) (*proc.Process, error) {
	if err := logflags.Setup(Log, LogOutput); err != nil {
		return nil, err
	}
	pid, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid pid %q", arg)
	}
	return proc.Attach(pid)
}

func threadsCmd(cmd *cobra.Command, args []string) error {
	p, err := attach(args[0])
	if err != nil {
		return err
	}
	defer p.Detach()

	threads, err := p.Threads()
	if err != nil {
		return err
	}
	for _, thread := range threads {
		active, err := thread.Active()
		if err != nil {
			return err
		}
		fmt.Printf("Thread %d - %s\n", thread.ID(), runningOrIdle(active))
	}
	return nil
}

func stacksCmd(cmd *cobra.Command, args []string) error {
	p, err := attach(args[0])
	if err != nil {
		return err
	}
	defer p.Detach()

	unwinder, err := p.Unwinder()
	if err != nil {
		return err
	}
	symbolicator, err := p.Symbolicator()
	if err != nil {
		return err
	}

	indent := ""
	if isatty.IsTerminal(os.Stdout.Fd()) {
		indent = "\t"
	}

	threads, err := p.Threads()
	if err != nil {
		return err
	}
	for _, thread := range threads {
		// The thread reports idle while locked, so query Active before
		// taking the lock.
		active, err := thread.Active()
		if err != nil {
			return err
		}
		fmt.Printf("Thread %d - %s\n", thread.ID(), runningOrIdle(active))

		if err := printStack(unwinder, symbolicator, thread, indent); err != nil {
			return err
		}
	}
	return nil
}

func printStack(unwinder *proc.Unwinder, symbolicator *proc.Symbolicator, thread *proc.Thread, indent string) error {
	lock, err := thread.Lock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	cursor, err := unwinder.Cursor(thread)
	if err != nil {
		return err
	}
	depth := 0
	for cursor.Next() && depth < MaxDepth {
		depth++
		if err := symbolicate(symbolicator, cursor.Addr(), indent); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		fmt.Printf("%s(stack truncated: %v)\n", indent, err)
	}
	return nil
}

func symbolicate(symbolicator *proc.Symbolicator, addr uint64, indent string) error {
	show := func(frame *proc.StackFrame) {
		fmt.Printf("%s%s\n", indent, frame)
	}
	err := symbolicator.Symbolicate(addr, Demangle, show)
	var miss *proc.NoBinaryForAddressError
	if errors.As(err, &miss) {
		// The target loaded a module after the map was built; reload
		// once and retry.
		if err := symbolicator.Modules().Reload(); err != nil {
			return err
		}
		err = symbolicator.Symbolicate(addr, Demangle, show)
		if errors.As(err, &miss) {
			show(&proc.StackFrame{Addr: addr, Module: "?"})
			return nil
		}
	}
	return err
}

func runningOrIdle(active bool) string {
	if active {
		return "running"
	}
	return "idle"
}
