package docx

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// EscapeText returns text escaped the way it appears inside a <w:t> element.
func EscapeText(text string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(text))
	return b.String()
}

// ParagraphXML renders text as one paragraph with a single run.
//
// sizeHalfPoints > 0 adds a run size property (22 = 11pt); 0 emits minimal
// markup that inherits the paragraph style.
func ParagraphXML(prefix, text string, sizeHalfPoints int) string {
	q := func(local string) string {
		if prefix == "" {
			return local
		}
		return prefix + ":" + local
	}

	var b strings.Builder
	b.WriteString("<" + q("p") + "><" + q("r") + ">")
	if sizeHalfPoints > 0 {
		n := strconv.Itoa(sizeHalfPoints)
		b.WriteString("<" + q("rPr") + ">")
		b.WriteString("<" + q("sz") + " " + q("val") + `="` + n + `"/>`)
		b.WriteString("<" + q("szCs") + " " + q("val") + `="` + n + `"/>`)
		b.WriteString("</" + q("rPr") + ">")
	}
	b.WriteString("<" + q("t") + ` xml:space="preserve">`)
	b.WriteString(EscapeText(text))
	b.WriteString("</" + q("t") + "></" + q("r") + "></" + q("p") + ">")
	return b.String()
}
