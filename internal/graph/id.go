package graph

import "strings"

const hexDigits = "0123456789abcdef"

// StageID returns the node id for a stage.
func StageID(stage string) string {
	return "stage__" + encode(stage)
}

// JobID returns the node id for a job inside a stage.
func JobID(stage, job string) string {
	return "job__" + encode(stage) + "__" + encode(job)
}

// encode keeps ASCII letters and digits and writes every other byte as _xx.
// The result never contains "__", so the separators above stay unambiguous.
func encode(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}
