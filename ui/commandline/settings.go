// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/sanjeeku/neuralmonkey/pkg/ml/params"
	"github.com/sanjeeku/neuralmonkey/pkg/support/fsutil"
	"github.com/sanjeeku/neuralmonkey/pkg/support/xslices"
)

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "beam_size=8;decoder/max_steps=20".
//
// All the parameters must be already set with default values in the root scope of p.
// The default values are also used to set the type to which the string values will be parsed to.
//
// A setting can be scoped, "decoder/beam_size=8" (or "/decoder/beam_size=8") sets beam_size only
// within the scope "/decoder", as long as a default "beam_size" is defined at the root.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// A setting "file:<path>" reads the settings from the file, one or more per line,
// and lines starting with "#" are comments.
//
// It returns the list of parameters set, in the order they were given.
//
// Example usage:
//
//	func main() {
//		p := createDefaultParams()
//		settings := commandline.CreateSettingsFlag(p, "")
//		flag.Parse()
//		paramsSet, err := commandline.ParseSettings(p, *settings)
//		if err != nil { klog.Fatalf("%+v", err) }
//		fmt.Println(commandline.SprintModifiedSettings(p, paramsSet))
//		...
//	}
func ParseSettings(p *params.Params, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseSetting(p, setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(p *params.Params, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		filePath := strings.TrimPrefix(setting, "file:")
		var contents []byte
		contents, err = fsutil.ReadFile(filePath, "settings")
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, lineSetting := range strings.Split(line, ";") {
				newParamsSet, err = parseSetting(p, lineSetting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	paramPath, valueStr, found := strings.Cut(setting, "=")
	if !found || paramPath == "" {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	if strings.Contains(paramPath, params.ScopeSeparator) && !strings.HasPrefix(paramPath, params.ScopeSeparator) {
		paramPath = params.ScopeSeparator + paramPath
	}
	paramScope, paramName := params.SplitScope(paramPath)
	if paramName == "" {
		err = errors.Errorf("can't parse setting %q: missing parameter name", setting)
		return
	}
	defaultValue, found := p.InAbsPath(params.RootScope).Get(paramName)
	if !found {
		err = errors.Errorf("can't set parameter %q because the param %q is not known in the root scope",
			paramPath, paramName)
		return
	}
	value, err := parseValue(defaultValue, valueStr)
	if err != nil {
		err = errors.WithMessagef(err, "failed to parse value %q for parameter %q (default value is %#v)",
			valueStr, paramPath, defaultValue)
		return
	}
	inScope := p.InAbsPath(params.RootScope)
	if paramScope != "" {
		inScope = p.InAbsPath(paramScope)
	}
	inScope.Set(paramName, value)
	newParamsSet = append(newParamsSet, paramPath)
	return
}

// parseValue parses valueStr to the same type as defaultValue.
func parseValue(defaultValue any, valueStr string) (value any, err error) {
	unmarshalNumber := func(target any) error {
		return errors.WithStack(json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), target))
	}
	switch defaultValue.(type) {
	case int:
		var v int
		err = unmarshalNumber(&v)
		value = v
	case int64:
		var v int64
		err = unmarshalNumber(&v)
		value = v
	case uint64:
		var v uint64
		err = unmarshalNumber(&v)
		value = v
	case float64:
		var v float64
		err = unmarshalNumber(&v)
		value = v
	case bool:
		var v bool
		err = errors.WithStack(json.Unmarshal([]byte(valueStr), &v))
		value = v
	case string:
		value = valueStr
	case []string:
		value = strings.Split(valueStr, ",")
	case []int:
		value = xslices.Map(strings.Split(valueStr, ","), func(str string) int {
			var asInt int
			if newErr := json.Unmarshal([]byte(strings.ReplaceAll(str, "_", "")), &asInt); newErr != nil {
				err = errors.WithStack(newErr)
			}
			return asInt
		})
	case []float64:
		value = xslices.Map(strings.Split(valueStr, ","), func(str string) float64 {
			var asNum float64
			if newErr := json.Unmarshal([]byte(str), &asNum); newErr != nil {
				err = errors.WithStack(newErr)
			}
			return asNum
		})
	default:
		err = errors.Errorf("don't know how to parse type %T", defaultValue)
	}
	return
}

// CreateSettingsFlag creates a string flag with the given flagName (if empty it will be named
// "set") and with a description of the parameters currently defined in the root scope of p.
//
// The flag should be created before the call to `flag.Parse()`.
func CreateSettingsFlag(p *params.Params, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{fmt.Sprintf(
		`Set hyperparameters. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`Scoped settings are allowed, by using %q to separate scopes. `+
			`It can also be given an entry like: "file:settings_file.txt", in `+
			`which case the file will be read and the settings will be parsed, `+
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. `+
			`Current available parameters that can be set:`,
		params.ScopeSeparator)}
	p.Enumerate(func(scope, key string, value any) {
		if scope != params.RootScope {
			return
		}
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, value))
	})
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(parts, "\n"))
	return &settings
}

// SprintSettings pretty-prints all hyperparameters settings into a string.
func SprintSettings(p *params.Params) string {
	var parts []string
	p.Enumerate(func(scope, key string, value any) {
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", params.JoinScope(scope, key), value, value))
	})
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-prints the values of the parameters in paramsSet, as returned by ParseSettings.
func SprintModifiedSettings(p *params.Params, paramsSet []string) string {
	var parts []string
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	paramsSet = slices.Compact(paramsSet)
	for _, paramPath := range paramsSet {
		paramScope, paramName := params.SplitScope(paramPath)
		if paramScope == "" {
			paramScope = params.RootScope
		}
		value, found := p.InAbsPath(paramScope).Get(paramName)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", paramPath, value, value))
	}
	return strings.Join(parts, "\n")
}
