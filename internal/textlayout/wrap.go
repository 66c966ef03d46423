/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout breaks cell labels into lines that fit a pixel width.
// Measurement goes through x/image font faces so exports and tests agree on
// the same metrics.
package textlayout

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const ellipsis = "..."

// DefaultFace is used when a nil face is passed.
var DefaultFace font.Face = basicfont.Face7x13

// LineHeight returns the line advance of face in pixels.
func LineHeight(face font.Face) int {
	if face == nil {
		face = DefaultFace
	}
	return face.Metrics().Height.Ceil()
}

// Width returns the advance of s in pixels.
func Width(face font.Face, s string) int {
	if face == nil {
		face = DefaultFace
	}
	return font.MeasureString(face, s).Ceil()
}

// Wrap breaks text on spaces into lines no wider than maxWidth. A newline
// always starts a new line and a word wider than a line is split between
// runes. maxWidth <= 0 disables wrapping.
func Wrap(face font.Face, text string, maxWidth int) []string {
	if face == nil {
		face = DefaultFace
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		if maxWidth <= 0 {
			out = append(out, para)
			continue
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, w := range words {
			candidate := w
			if line != "" {
				candidate = line + " " + w
			}
			if Width(face, candidate) <= maxWidth {
				line = candidate
				continue
			}
			if line != "" {
				out = append(out, line)
				line = ""
			}
			for Width(face, w) > maxWidth {
				head, rest := splitAt(face, w, maxWidth)
				out = append(out, head)
				w = rest
			}
			line = w
		}
		out = append(out, line)
	}
	return out
}

// splitAt returns the longest prefix of s that fits maxWidth (at least one rune) and the rest.
func splitAt(face font.Face, s string, maxWidth int) (string, string) {
	cut := 0
	for i, r := range s {
		next := i + utf8.RuneLen(r)
		if cut > 0 && Width(face, s[:next]) > maxWidth {
			break
		}
		cut = next
	}
	return s[:cut], s[cut:]
}

// Fit shortens s with a trailing ellipsis so it fits maxWidth.
func Fit(face font.Face, s string, maxWidth int) string {
	if maxWidth <= 0 || Width(face, s) <= maxWidth {
		return s
	}
	for len(s) > 0 {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
		if Width(face, s+ellipsis) <= maxWidth {
			return s + ellipsis
		}
	}
	if Width(face, ellipsis) <= maxWidth {
		return ellipsis
	}
	return ""
}

// Block wraps every line to maxWidth and keeps at most maxLines of the
// result. When lines are dropped the last kept line ends in an ellipsis.
func Block(face font.Face, lines []string, maxWidth, maxLines int) []string {
	var out []string
	for _, l := range lines {
		out = append(out, Wrap(face, l, maxWidth)...)
	}
	if maxLines <= 0 || len(out) <= maxLines {
		return out
	}
	out = out[:maxLines]
	last := out[maxLines-1]
	if Width(face, last+ellipsis) <= maxWidth {
		out[maxLines-1] = last + ellipsis
	} else {
		out[maxLines-1] = Fit(face, last+ellipsis, maxWidth)
	}
	return out
}
