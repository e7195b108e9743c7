package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"research-master/internal/cache"
	"research-master/internal/dedup"
	"research-master/internal/domain"
	"research-master/internal/usecase"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatPlain = "plain"
)

// format resolves --output; auto picks table on a terminal and plain
// when piped.
func (g *globalOptions) format() string {
	if g.Output != "" && g.Output != "auto" {
		return g.Output
	}
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return formatTable
	}
	return formatPlain
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// ellipsize keeps table cells readable; full values are always available
// via -o json or -o plain.
func ellipsize(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func yearOf(p *domain.Paper) string {
	if y := p.Year(); y > 0 {
		return strconv.Itoa(y)
	}
	return ""
}

func renderSearch(w io.Writer, format string, resp *domain.SearchResponse) error {
	switch format {
	case formatJSON:
		return writeJSON(w, resp)
	case formatPlain:
		for i := range resp.Papers {
			p := &resp.Papers[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.PrimaryID(), p.Title, p.Authors, yearOf(p), p.Source)
		}
		return nil
	default:
		if len(resp.Papers) == 0 {
			fmt.Fprintln(w, "No papers found")
			return nil
		}
		rows := make([][]string, 0, len(resp.Papers))
		for i := range resp.Papers {
			p := &resp.Papers[i]
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				ellipsize(p.Title, 60),
				ellipsize(p.Authors, 36),
				yearOf(p),
				string(p.Source),
				ellipsize(p.PrimaryID(), 28),
			})
		}
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"#", "title", "authors", "year", "source", "id"})
		t.SetFooter([]string{"", "", "", "", "shown", strconv.Itoa(len(resp.Papers))})
		t.AppendBulk(rows)
		t.Render()
		return nil
	}
}

func renderPaper(w io.Writer, format string, p *domain.Paper) error {
	switch format {
	case formatJSON:
		return writeJSON(w, p)
	case formatPlain:
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.PrimaryID(), p.Title, p.Authors, yearOf(p), p.Source)
		return nil
	default:
		rows := [][]string{
			{"id", p.PrimaryID()},
			{"title", ellipsize(p.Title, 80)},
			{"authors", ellipsize(p.Authors, 80)},
			{"year", yearOf(p)},
			{"source", string(p.Source)},
		}
		if p.DOI != "" {
			rows = append(rows, []string{"doi", p.DOI})
		}
		if p.CitationCount != nil {
			rows = append(rows, []string{"citations", strconv.Itoa(*p.CitationCount)})
		}
		if p.URL != "" {
			rows = append(rows, []string{"url", p.URL})
		}
		if p.PDFURL != "" {
			rows = append(rows, []string{"pdf", p.PDFURL})
		}
		if p.Abstract != "" {
			rows = append(rows, []string{"abstract", ellipsize(p.Abstract, 400)})
		}
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"field", "value"})
		t.AppendBulk(rows)
		t.Render()
		return nil
	}
}

func renderDownload(w io.Writer, format string, res *domain.DownloadResult) error {
	if format == formatJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Saved %s (%d bytes) from %s\n", res.FilePath, res.SizeBytes, res.Source)
	return nil
}

func renderRead(w io.Writer, format string, res *domain.ReadResult) error {
	if format == formatJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintln(w, res.Text)
	if res.Truncated {
		fmt.Fprintf(os.Stderr, "(text truncated; full PDF at %s)\n", res.FilePath)
	}
	return nil
}

func renderSources(w io.Writer, format string, sources []usecase.SourceInfo) error {
	switch format {
	case formatJSON:
		return writeJSON(w, sources)
	case formatPlain:
		for _, s := range sources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.Capabilities, s.Enabled, s.BreakerState)
		}
		return nil
	default:
		rows := make([][]string, 0, len(sources))
		enabled := 0
		for _, s := range sources {
			state := s.BreakerState
			if !s.Enabled {
				state = "disabled"
			} else {
				enabled++
			}
			rows = append(rows, []string{s.ID, s.Name, s.Capabilities, state})
		}
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"id", "name", "capabilities", "state"})
		t.SetFooter([]string{"", "", "enabled", strconv.Itoa(enabled)})
		t.AppendBulk(rows)
		t.Render()
		return nil
	}
}

func renderDedupe(w io.Writer, format string, res dedup.Result) error {
	switch format {
	case formatJSON:
		return writeJSON(w, res)
	case formatPlain:
		for i := range res.Papers {
			p := &res.Papers[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.PrimaryID(), p.Title, p.Authors, yearOf(p), p.Source)
		}
		return nil
	default:
		rows := make([][]string, 0, len(res.Papers))
		for i := range res.Papers {
			p := &res.Papers[i]
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				ellipsize(p.Title, 60),
				string(p.Source),
				ellipsize(p.PrimaryID(), 28),
			})
		}
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"#", "title", "source", "id"})
		t.SetFooter([]string{"", "", "removed", strconv.Itoa(res.Removed)})
		t.AppendBulk(rows)
		t.Render()
		return nil
	}
}

func renderCacheStats(w io.Writer, format string, st cache.Stats) error {
	switch format {
	case formatJSON:
		return writeJSON(w, st)
	case formatPlain:
		fmt.Fprintf(w, "enabled\t%t\ndirectory\t%s\nsearches\t%d\ncitations\t%d\nbytes\t%d\nmax bytes\t%d\nsearch ttl\t%ds\ncitation ttl\t%ds\n",
			st.Enabled, st.Directory, st.Searches, st.Citations, st.TotalBytes,
			st.MaxBytes, st.SearchTTLSeconds, st.CitationTTLSeconds)
		return nil
	default:
		t := tablewriter.NewWriter(w)
		t.SetHeader([]string{"field", "value"})
		t.AppendBulk([][]string{
			{"enabled", strconv.FormatBool(st.Enabled)},
			{"directory", st.Directory},
			{"searches", strconv.Itoa(st.Searches)},
			{"citations", strconv.Itoa(st.Citations)},
			{"total bytes", strconv.FormatInt(st.TotalBytes, 10)},
			{"max bytes", strconv.FormatInt(st.MaxBytes, 10)},
			{"search ttl", strconv.Itoa(st.SearchTTLSeconds) + "s"},
			{"citation ttl", strconv.Itoa(st.CitationTTLSeconds) + "s"},
		})
		t.Render()
		return nil
	}
}
