package policy

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseFunctionArgs reads the function-arity map. Each line is either
// "<label> <n>" or "<function> <label> <n>". Two functions sharing a label
// must agree on the number of arguments.
func ParseFunctionArgs(r io.Reader) (map[string]int, error) {
	args := make(map[string]int)
	err := scanAux(r, "function args", func(label string, n int) error {
		if prev, ok := args[label]; ok && prev != n {
			return fmt.Errorf("functions with different numbers of arguments use the same label %q", label)
		}
		args[label] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return args, nil
}

// ParseOneWay reads the one-way map ("<label> <flag>" or
// "<function> <label> <flag>") and returns the labels whose return value is
// used somewhere in the program (some flag is 0).
func ParseOneWay(r io.Reader) (map[string]bool, error) {
	flags := make(map[string]int)
	err := scanAux(r, "one-way", func(label string, flag int) error {
		if prev, ok := flags[label]; !ok || flag < prev {
			flags[label] = flag
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	for label, flag := range flags {
		if flag == 0 {
			used[label] = true
		}
	}
	return used, nil
}

func scanAux(r io.Reader, what string, fn func(label string, n int) error) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var label, num string
		switch len(fields) {
		case 2:
			label, num = fields[0], fields[1]
		case 3:
			label, num = fields[1], fields[2]
		default:
			return fmt.Errorf("%s line %d: expected 2 or 3 fields, got %d", what, line, len(fields))
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", what, line, err)
		}
		if err := fn(label, n); err != nil {
			return fmt.Errorf("%s line %d: %w", what, line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	return nil
}
