/*
	This file holds types and functions supporting command-line activity.
*/

package tuvok

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys for setting various arguments within the command line via "key=value" strings.
const (
	KeyType       = "type"
	KeyBits       = "bits"
	KeySkip       = "skip"
	KeySize       = "size"
	KeyBrickSize  = "brick"
	KeyComponents = "components"
	KeyConfigFile = "config"
	KeyBinning    = "binning"
	KeyFrames     = "frames"
	KeyLOD        = "lod"
)

var setKeys = map[string]bool{
	KeyType:       true,
	KeyBits:       true,
	KeySkip:       true,
	KeySize:       true,
	KeyBrickSize:  true,
	KeyComponents: true,
	KeyConfigFile: true,
	KeyBinning:    true,
	KeyFrames:     true,
	KeyLOD:        true,
}

// Command is a command-line request.  The first item in the string slice is the
// command name.  The other arguments are command arguments or optional settings
// of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Parameter scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.Split(arg, "=")
			if len(elems) == 2 && elems[0] == key {
				value = elems[1]
				found = true
				return
			}
		}
	}
	return
}

// UintParameter returns the unsigned integer value of a "key=value" setting or
// the default if the key is absent.
func (cmd Command) UintParameter(key string, defaultValue uint64) (uint64, error) {
	s, found := cmd.Parameter(key)
	if !found {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s=%q setting: %v", key, s, err)
	}
	return v, nil
}

// Vec3Parameter parses a "key=x,y,z" setting.
func (cmd Command) Vec3Parameter(key string, defaultValue Vec3) (Vec3, error) {
	s, found := cmd.Parameter(key)
	if !found {
		return defaultValue, nil
	}
	var v Vec3
	if _, err := fmt.Sscanf(s, "%d,%d,%d", &v[0], &v[1], &v[2]); err != nil {
		return v, fmt.Errorf("bad %s=%q setting, expected x,y,z: %v", key, s, err)
	}
	return v, nil
}

// CommandArgs sets a variadic argument set of string pointers to command
// arguments, ignoring setting arguments of the form "<key>=<value>".
// If there aren't enough arguments to set a target, the target is set to the
// empty string.  It returns an 'overflow' slice that has all arguments
// beyond those needed for targets.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string) {
	return getArgs(cmd, 1, targets...)
}

func getArgs(cmd Command, startPos int, targets ...*string) (overflow []string) {
	overflow = make([]string, 0, len(cmd))
	for _, target := range targets {
		*target = ""
	}
	if len(cmd) > startPos {
		numTargets := len(targets)
		curTarget := 0
		for _, arg := range cmd[startPos:] {
			optionalSet := false
			elems := strings.Split(arg, "=")
			if len(elems) == 2 {
				_, optionalSet = setKeys[elems[0]]
			}
			if !optionalSet {
				if curTarget >= numTargets {
					overflow = append(overflow, arg)
				} else {
					*(targets[curTarget]) = arg
				}
				curTarget++
			}
		}
	}
	return
}
