package util

// GlyphKind identifies a console line prefix.
type GlyphKind int

const (
	GlyphStart GlyphKind = iota
	GlyphScan
	GlyphDeleted
	GlyphDryRun
	GlyphPermission
	GlyphError
	GlyphWarning
	GlyphDone
	GlyphFatal
)

var glyphs = map[GlyphKind][2]string{
	GlyphStart:      {"🚀", "[start]"},
	GlyphScan:       {"📊", "[scan]"},
	GlyphDeleted:    {"✅", "[ok]"},
	GlyphDryRun:     {"🔎", "[dry-run]"},
	GlyphPermission: {"❌", "[denied]"},
	GlyphError:      {"❌", "[error]"},
	GlyphWarning:    {"⚠️", "[warn]"},
	GlyphDone:       {"🎉", "[done]"},
	GlyphFatal:      {"💥", "[fatal]"},
}

// Glyph returns the line prefix for kind. plain selects an ASCII form for
// terminals without emoji support or redirected output.
func Glyph(kind GlyphKind, plain bool) string {
	g, ok := glyphs[kind]
	if !ok {
		return ""
	}
	if plain {
		return g[1]
	}
	return g[0]
}
