package contact

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ekklesia/commhub/internal/domain"
)

var csvHeader = []string{"name", "phone", "status", "opt_out_sms", "opt_out_whatsapp", "tags", "metadata"}

func writeCSV(contacts []domain.Contact) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, c := range contacts {
		name := ""
		if c.Name != nil {
			name = *c.Name
		}
		status := c.Status
		if status == "" {
			status = domain.ContactStatusActive
		}
		meta := ""
		if len(c.Metadata) > 0 && string(c.Metadata) != "null" {
			meta = string(c.Metadata)
		}
		row := []string{
			name,
			c.Phone,
			status,
			strconv.FormatBool(c.OptOutSMS),
			strconv.FormatBool(c.OptOutWhatsApp),
			strings.Join(c.Tags, ";"),
			meta,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

var vcardEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\n", `\n`)

// writeVCards renders vCard 3.0 entries separated by a blank line.
func writeVCards(contacts []domain.Contact) []byte {
	var b strings.Builder
	for _, c := range contacts {
		b.WriteString("BEGIN:VCARD\r\n")
		b.WriteString("VERSION:3.0\r\n")
		if c.Name != nil && *c.Name != "" {
			b.WriteString("FN:" + vcardEscaper.Replace(*c.Name) + "\r\n")
		}
		if c.Phone != "" {
			b.WriteString("TEL;TYPE=CELL:" + c.Phone + "\r\n")
		}
		b.WriteString("END:VCARD\r\n\r\n")
	}
	return []byte(b.String())
}

type vcard struct {
	name   string
	phones []string
}

var vcardUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n")

// readVCards parses the FN and TEL properties of every card in r.
// Folded lines are joined; other properties are ignored.
func readVCards(r io.Reader) ([]vcard, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vcard: %w", err)
	}

	var (
		cards []vcard
		cur   *vcard
	)
	for _, line := range lines {
		prop, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		params := strings.Split(prop, ";")
		name := strings.ToUpper(strings.TrimSpace(params[0]))
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:] // item1.TEL
		}
		value = strings.TrimSpace(value)

		switch {
		case name == "BEGIN" && strings.EqualFold(value, "VCARD"):
			cur = &vcard{}
		case name == "END" && strings.EqualFold(value, "VCARD"):
			if cur != nil {
				cards = append(cards, *cur)
			}
			cur = nil
		case cur == nil:
		case name == "FN":
			cur.name = vcardUnescaper.Replace(value)
		case name == "TEL":
			if value != "" {
				cur.phones = append(cur.phones, strings.TrimPrefix(value, "tel:"))
			}
		}
	}
	if cur != nil {
		return nil, fmt.Errorf("unterminated vcard")
	}
	return cards, nil
}
