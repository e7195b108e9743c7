package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperID(t *testing.T) {
	valid := []string{
		"2301.00001",
		"arxiv:2301.00001v2",
		"PMC1234567",
		"10.1000/182",
		"2023/1234",
		"hal-01234567",
		"DBLP:conf/nips/VaswaniSPUJGKP17",
	}
	for _, id := range valid {
		assert.NoError(t, PaperID(id), "id %q", id)
	}

	invalid := []string{
		"",
		"   ",
		"../../etc/passwd",
		"abc;rm -rf /",
		"abc|cat",
		"abc&whoami",
		"abc$HOME",
		"abc`id`",
		"abc>out",
		"/etc/passwd",
		"~root",
		"abc\ndef",
		"abc\x00def",
		strings.Repeat("a", 300),
	}
	for _, id := range invalid {
		assert.Error(t, PaperID(id), "id %q should be rejected", id)
	}
}

func TestCanonicalDOI(t *testing.T) {
	got, err := CanonicalDOI("https://doi.org/10.1038/NPHYS1170")
	require.NoError(t, err)
	assert.Equal(t, "10.1038/nphys1170", got)

	got, err = CanonicalDOI("doi:10.1101/2024.01.01.573999")
	require.NoError(t, err)
	assert.Equal(t, "10.1101/2024.01.01.573999", got)

	for _, bad := range []string{"", "1234", "10.1038", "not-a-doi", "11.1000/x"} {
		_, err := CanonicalDOI(bad)
		assert.Error(t, err, "doi %q should be rejected", bad)
	}
}

func TestURL(t *testing.T) {
	valid := []string{
		"https://arxiv.org/pdf/2301.00001.pdf",
		"http://export.arxiv.org/api/query",
		"https://api.openalex.org/works",
	}
	for _, u := range valid {
		assert.NoError(t, URL(u), "url %q", u)
	}

	invalid := []string{
		"ftp://example.org/file.pdf",
		"file:///etc/passwd",
		"https://localhost/x",
		"https://sub.localhost/x",
		"http://127.0.0.1:8080/x",
		"http://127.8.9.10/x",
		"http://[::1]/x",
		"http://0.0.0.0/x",
		"http://10.0.0.5/x",
		"http://172.16.3.4/x",
		"http://192.168.1.1/x",
		"http://169.254.169.254/latest/meta-data",
		"not a url at all://",
		"https://",
	}
	for _, u := range invalid {
		assert.Error(t, URL(u), "url %q should be rejected", u)
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "paper.pdf", Filename(""))
	assert.Equal(t, "paper.pdf", Filename("///"))
	assert.Equal(t, "10.1000_182.pdf", Filename("10.1000/182.pdf"))
	assert.Equal(t, "a b_c.pdf", Filename("a b:c.pdf"))

	traversal := Filename("../../etc/passwd")
	assert.NotContains(t, traversal, "/")
	assert.False(t, strings.HasPrefix(traversal, "."))

	long := strings.Repeat("x", 400) + ".pdf"
	got := Filename(long)
	assert.LessOrEqual(t, len(got), 255)
	assert.True(t, strings.HasSuffix(got, ".pdf"), "extension preserved")
}
