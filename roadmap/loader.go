package roadmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultMaxRoadsPerJunction bounds a junction's fan-out.
const DefaultMaxRoadsPerJunction = 50

var (
	// ErrMalformed is returned for unparseable road-map input
	ErrMalformed = errors.New("malformed road map")

	// ErrTooManyRoads is returned when a junction exceeds the fan-out limit
	ErrTooManyRoads = errors.New("too many roads at junction")
)

const (
	headerLayout = "# Road layout:"
	headerLights = "# Traffic lights:"
)

type readMode int

const (
	modeNone readMode = iota
	modeRoads
	modeLights
)

// LoadFile reads a road-map file.
func LoadFile(path string, maxRoads int) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open road map: %w", err)
	}
	defer f.Close()

	g, err := Parse(f, maxRoads)
	if err != nil {
		return nil, fmt.Errorf("road map %s: %w", path, err)
	}
	return g, nil
}

// Parse reads the line-oriented road-map format:
//
//	% comment
//	# Road layout: <junctions>
//	<from> <to> <length> <speed>
//	# Traffic lights:
//	<junction>
func Parse(r io.Reader, maxRoads int) (*Graph, error) {
	if maxRoads <= 0 {
		maxRoads = DefaultMaxRoadsPerJunction
	}

	var (
		g      *Graph
		mode   = modeNone
		lineNo int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, headerLayout):
				n, err := strconv.Atoi(strings.TrimSpace(line[len(headerLayout):]))
				if err != nil || n < 0 {
					return nil, fmt.Errorf("line %d: junction count %q: %w", lineNo, line, ErrMalformed)
				}
				g = New(n)
				mode = modeRoads
			case strings.HasPrefix(line, headerLights):
				mode = modeLights
			}
			continue
		}

		switch mode {
		case modeRoads:
			fields, err := parseInts(line, 4)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			road := Road{From: fields[0], To: fields[1], Length: fields[2], MaxSpeed: fields[3]}
			if g.Valid(road.From) && len(g.Junctions[road.From].Roads) >= maxRoads {
				return nil, fmt.Errorf("line %d: junction %d already has %d roads: %w",
					lineNo, road.From, maxRoads, ErrTooManyRoads)
			}
			if err := g.AddRoad(road); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case modeLights:
			fields, err := parseInts(line, 1)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if g == nil {
				return nil, fmt.Errorf("line %d: traffic lights before road layout: %w", lineNo, ErrMalformed)
			}
			if err := g.SetLight(fields[0]); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		default:
			return nil, fmt.Errorf("line %d: data before any section header: %w", lineNo, ErrMalformed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read road map: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("missing %q header: %w", headerLayout, ErrMalformed)
	}
	return g, nil
}

func parseInts(line string, n int) ([]int, error) {
	parts := strings.Fields(line)
	if len(parts) < n {
		return nil, fmt.Errorf("expected %d integers in %q: %w", n, line, ErrMalformed)
	}
	vals := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", parts[i], ErrMalformed)
		}
		vals[i] = v
	}
	return vals, nil
}
