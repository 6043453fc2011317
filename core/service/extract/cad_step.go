package extract

import (
	"regexp"
	"strings"

	"mailroom/core/domain"
)

// STEP entity patterns. The first occurrence of each entity wins;
// absence of a match leaves the field empty.
var (
	stepProductRe  = regexp.MustCompile(`PRODUCT\s*\(\s*'([^']*)'\s*,\s*'([^']*)'`)
	stepMaterialRe = regexp.MustCompile(`MATERIAL_DESIGNATION\s*\(\s*'([^']*)'`)
	stepSchemaRe   = regexp.MustCompile(`FILE_SCHEMA\s*\(\s*\(\s*'([^']*)'`)
)

// ParseSTEP regex-extracts product, material and protocol metadata from
// a STEP file treated as plain text.
func ParseSTEP(data []byte) *domain.CADFields {
	text := string(data)
	fields := &domain.CADFields{}

	if m := stepProductRe.FindStringSubmatch(text); m != nil {
		fields.ProductName = m[1]
		if fields.ProductName == "" {
			fields.ProductName = m[2]
		}
	}
	if m := stepMaterialRe.FindStringSubmatch(text); m != nil {
		fields.Material = m[1]
	}
	if m := stepSchemaRe.FindStringSubmatch(text); m != nil {
		schema := strings.ToUpper(m[1])
		switch {
		case strings.Contains(schema, "AUTOMOTIVE_DESIGN"):
			fields.ProtocolVersion = "AP214"
		case strings.Contains(schema, "CONFIG_CONTROL_DESIGN"):
			fields.ProtocolVersion = "AP203"
		}
	}
	return fields
}
