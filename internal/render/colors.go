package render

// DefaultColorTable maps catalog color codes to human labels. The codes
// appear as a #-suffix on product identities (CS902B#NW1). Overridable from
// the config file's color_table map.
var DefaultColorTable = map[string]string{
	"NW1": "ホワイト",
	"SC1": "パステルアイボリー",
	"SR2": "パステルピンク",
	"N11": "ペールホワイト",
	"N12": "ライトグレー",
	"NG2": "ホワイトグレー",
	"Y1":  "カームブラック",
}

// manufacturerPrefixes infers the manufacturer from the leading letters of a
// product identity. The catalog is single-vendor, so unknown prefixes fall
// back to the site's own brand.
var manufacturerPrefixes = map[string]string{
	"CS":  "TOTO",
	"SH":  "TOTO",
	"TCF": "TOTO",
	"YH":  "TOTO",
	"L":   "TOTO",
	"A":   "TOTO",
}

const defaultManufacturer = "TOTO"
