package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bgricker/pipeviz/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var (
		values config.FlagValues
		err    error
	)

	for name, dst := range map[string]*config.SliceFlag{
		"job":       &values.Jobs,
		"only-step": &values.OnlySteps,
		"skip-step": &values.SkipSteps,
	} {
		if *dst, err = sliceFlag(flags, name); err != nil {
			return values, err
		}
	}

	for name, dst := range map[string]*config.StringFlag{
		"format":      &values.Format,
		"format-hint": &values.FormatHint,
		"diagram":     &values.Diagram,
		"log-level":   &values.LogLevel,
		"log-file":    &values.LogFile,
		"addr":        &values.Addr,
	} {
		if *dst, err = stringFlag(flags, name); err != nil {
			return values, err
		}
	}

	for name, dst := range map[string]*config.IntFlag{
		"max-bytes":  &values.MaxBytes,
		"max-nodes":  &values.MaxNodes,
		"cache-size": &values.CacheSize,
	} {
		if *dst, err = intFlag(flags, name); err != nil {
			return values, err
		}
	}

	return values, nil
}

// stringFlag reports flags missing from the command, such as --addr outside
// serve, as unset. intFlag and sliceFlag do the same.
func stringFlag(flags *pflag.FlagSet, name string) (config.StringFlag, error) {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return config.StringFlag{}, nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return config.StringFlag{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return config.StringFlag{Value: v, Set: true}, nil
}

func intFlag(flags *pflag.FlagSet, name string) (config.IntFlag, error) {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return config.IntFlag{}, nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return config.IntFlag{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return config.IntFlag{Value: v, Set: true}, nil
}

func sliceFlag(flags *pflag.FlagSet, name string) (config.SliceFlag, error) {
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return config.SliceFlag{}, nil
	}
	v, err := flags.GetStringArray(name)
	if err != nil {
		return config.SliceFlag{}, fmt.Errorf("parse --%s: %w", name, err)
	}
	return config.SliceFlag{Values: append([]string{}, v...)}, nil
}
