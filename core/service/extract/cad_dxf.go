package extract

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"mailroom/core/domain"
)

// dwgMagic is the version prefix of every binary AutoCAD DWG file.
const dwgMagic = "AC10"

// DWGNote marks a binary drawing the pipeline cannot read directly.
const DWGNote = "binary DWG, conversion required"

// ParseDXF scans the group-code/value pair stream of an ASCII DXF file
// and collects layer names, named block names, free-text contents and
// dimension labels. Binary DWG payloads are flagged, never parsed.
func ParseDXF(data []byte) (*domain.CADFields, string, string) {
	if len(data) >= len(dwgMagic) && string(data[:len(dwgMagic)]) == dwgMagic {
		return &domain.CADFields{}, "", DWGNote
	}

	fields := &domain.CADFields{}
	var texts []string
	layerSeen := map[string]bool{}
	blockSeen := map[string]bool{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	// DXF alternates a group-code line with a value line. Track which
	// entity the stream is inside; the 0/2-code pairs name sections,
	// tables and entities.
	var entity string
	var prevCode = -1
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if prevCode < 0 {
			code, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			prevCode = code
			continue
		}
		code := prevCode
		prevCode = -1
		value := line

		switch code {
		case 0:
			entity = value
		case 2:
			switch entity {
			case "LAYER":
				if value != "" && !layerSeen[value] {
					layerSeen[value] = true
					fields.Layers = append(fields.Layers, value)
				}
			case "BLOCK":
				// "*"-prefixed blocks are anonymous/system entries.
				if value != "" && !strings.HasPrefix(value, "*") && !blockSeen[value] {
					blockSeen[value] = true
					fields.Blocks = append(fields.Blocks, value)
				}
			}
		case 1:
			switch entity {
			case "TEXT", "MTEXT", "DIMENSION":
				if value != "" {
					texts = append(texts, value)
				}
			}
		case 3:
			if entity == "MTEXT" && value != "" {
				texts = append(texts, value)
			}
		}
	}

	return fields, strings.Join(texts, "\n"), ""
}
