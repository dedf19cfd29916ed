package adapter

import (
	"bufio"
	"strings"

	"rplview/internal/domain"
)

// parseRoutes reads the source-routing links listed by a border router, one
// per line:
//
//	-- fd00::201:1:1:1  (DODAG root)
//	-- fd00::202:2:2:2  to fd00::201:1:1:1 (lifetime: 1800 seconds)
//
// Header lines and lines that do not start with an IP address are skipped;
// the second result counts lines that looked like routes but did not parse.
func parseRoutes(output string, weight float64) (*domain.Fragment, int) {
	fragment := domain.NewFragment()
	skipped := 0

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimSpace(strings.TrimPrefix(line, "--"))
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		child, err := addressFromIP(fields[0])
		if err != nil {
			// Headers such as "Routing links (3 in total):"
			continue
		}

		if len(fields) >= 3 && fields[1] == "to" {
			parent, err := addressFromIP(fields[2])
			if err != nil {
				skipped++
				continue
			}
			if parent != child {
				fragment.AddLink(child, parent, weight)
			}
			continue
		}

		fragment.AddNode(child)
	}

	return fragment, skipped
}
