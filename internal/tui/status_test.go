// SPDX-License-Identifier: MIT
package tui

import (
	"strings"
	"testing"

	"enhancer/internal/analysis"
)

func TestRenderSpectrumWidth(t *testing.T) {
	spectrum := make([]float64, 1025)
	for i := range spectrum {
		spectrum[i] = float64(i) / float64(len(spectrum))
	}

	out := renderSpectrum(spectrum)
	stripped := []rune(stripANSI(out))
	if len(stripped) != spectrumColumns {
		t.Errorf("spectrum strip is %d columns, want %d", len(stripped), spectrumColumns)
	}
}

func TestRenderSpectrumSmallInput(t *testing.T) {
	out := stripANSI(renderSpectrum([]float64{0, 0.5, 1}))
	if len([]rune(out)) != 3 {
		t.Errorf("short spectrum rendered %d columns, want 3", len([]rune(out)))
	}
}

func TestRenderSpectrumExtremes(t *testing.T) {
	flat := make([]float64, spectrumColumns)
	low := stripANSI(renderSpectrum(flat))
	for _, r := range low {
		if r != spectrumGlyphs[0] {
			t.Errorf("silent spectrum rendered %q, want all %q", r, spectrumGlyphs[0])
		}
	}

	for i := range flat {
		flat[i] = 1.0
	}
	high := stripANSI(renderSpectrum(flat))
	for _, r := range high {
		if r != spectrumGlyphs[len(spectrumGlyphs)-1] {
			t.Errorf("full-scale spectrum rendered %q, want all %q", r, spectrumGlyphs[len(spectrumGlyphs)-1])
		}
	}
}

func TestRenderQualityCoversAllValues(t *testing.T) {
	for _, q := range []analysis.Quality{
		analysis.QualityLow,
		analysis.QualityMedium,
		analysis.QualityHigh,
		analysis.QualityOriginal,
	} {
		out := stripANSI(renderQuality(q))
		if !strings.Contains(out, string(q)) {
			t.Errorf("renderQuality(%q) = %q, expected the value to appear", q, out)
		}
	}
}

// stripANSI removes terminal escape sequences from styled output.
func stripANSI(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
