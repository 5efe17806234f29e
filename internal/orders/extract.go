// Package orders turns order-confirmation emails into purchase history.
package orders

import (
	"bytes"
	"net/mail"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/util"
)

var (
	orderIDPattern  = regexp.MustCompile(`(?i)\b(?:encomenda|pedido|order)\s*(?:n\.?\s?º|nº|no\.?|number|num\.?)?\s*[:#]?\s*([A-Z]{0,4}-?\d[\dA-Z-]{3,})`)
	totalPattern    = regexp.MustCompile(`(?i)\btotal\b[^0-9\n]{0,30}(\d[\d., ]*\d(?:\s*€)?)`)
	textDatePattern = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4}|\d{4}-\d{2}-\d{2})\b`)
	textLinePattern = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*[x×]\s+(.+?)\s+(\d+[.,]\d{2})\s*€?$`)
	skipRowPattern  = regexp.MustCompile(`(?i)^(sub-?total|total|portes|taxa de entrega|delivery fee|desconto|discount|iva|vat)\b`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// ExtractOrder parses a raw RFC 822 order confirmation. Items come from
// HTML tables, then .xlsx receipts, then "2 x Name 1,78 €" text lines.
func ExtractOrder(raw []byte) (internal.OrderDetail, DetectResult, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.OrderDetail{}, DetectResult{}, errs.Wrap(err, errs.CategoryInvalidInput, "invalid_email", "")
	}
	subject := env.GetHeader("Subject")
	detect := DetectOrderConfirmation(subject, env.Text, env.HTML)

	order := internal.OrderDetail{Items: []internal.OrderLine{}}
	order.OrderID = findOrderID(subject, env.Text, htmlText(env.HTML))
	order.Date = orderDate(env.GetHeader("Date"), env.Text)

	if env.HTML != "" {
		order.Items = append(order.Items, parseHTMLTables(env.HTML)...)
	}
	if len(order.Items) == 0 {
		for _, att := range env.Attachments {
			if strings.HasSuffix(strings.ToLower(att.FileName), ".xlsx") {
				if lines, err := parseXLSX(att.Content); err == nil {
					order.Items = append(order.Items, lines...)
				}
			}
		}
	}
	if len(order.Items) == 0 && env.Text != "" {
		order.Items = append(order.Items, parseTextLines(env.Text)...)
	}
	order.ItemCount = len(order.Items)
	order.Total = findTotal(env.Text, htmlText(env.HTML), order.Items)

	if order.OrderID == "" {
		return order, detect, errs.Invalid("missing_order_id", "no order id found in %q", subject)
	}
	if order.Date == "" {
		return order, detect, errs.Invalid("missing_order_date", "order %s has no date", order.OrderID)
	}
	if len(order.Items) == 0 {
		return order, detect, errs.Invalid("no_order_items", "order %s has no item lines", order.OrderID)
	}
	return order, detect, nil
}

func findOrderID(sources ...string) string {
	for _, s := range sources {
		if m := orderIDPattern.FindStringSubmatch(s); len(m) == 2 {
			return strings.ToUpper(strings.Trim(m[1], "-"))
		}
	}
	return ""
}

func orderDate(header, text string) string {
	if t, err := mail.ParseDate(header); err == nil {
		return t.UTC().Format("2006-01-02")
	}
	if m := textDatePattern.FindStringSubmatch(text); len(m) == 2 {
		if t, ok := internal.ParseDate(m[1]); ok {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func findTotal(text, html string, items []internal.OrderLine) float64 {
	for _, s := range []string{text, html} {
		matches := totalPattern.FindAllStringSubmatch(s, -1)
		if len(matches) == 0 {
			continue
		}
		// The last "Total" in a confirmation is the grand total.
		if v, ok := util.ParsePrice(matches[len(matches)-1][1]); ok {
			return v
		}
	}
	sum := 0.0
	for _, it := range items {
		sum += it.LinePrice
	}
	return sum
}

func htmlText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Text()
}

type columns struct {
	name, qty, unitPrice, linePrice, ref int
}

func inferColumns(headers []string) columns {
	norm := make([]string, 0, len(headers))
	for _, h := range headers {
		norm = append(norm, util.NormalizeName(h))
	}
	c := columns{
		name:      findHeaderIndex(norm, []string{"produto", "artigo", "descricao", "product", "item", "name"}),
		qty:       findHeaderIndex(norm, []string{"qtd", "quant", "qty", "unidades"}),
		unitPrice: findHeaderIndex(norm, []string{"preco unit", "p. unit", "pvp", "unit price"}),
		ref:       findHeaderIndex(norm, []string{"ref", "codigo", "sku", "ean"}),
	}
	c.linePrice = findHeaderIndexExcept(norm, []string{"total", "valor", "preco", "price", "subtotal"}, c.unitPrice)
	return c
}

func parseHTMLTables(html string) []internal.OrderLine {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.OrderLine{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		headers := []string{}
		rows.First().Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, normalizeSpaces(cell.Text()))
		})
		cols := inferColumns(headers)
		if cols.name < 0 || (cols.linePrice < 0 && cols.unitPrice < 0) {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			if line, ok := toOrderLine(cells, cols); ok {
				if id, exists := row.Attr("data-product-id"); exists && line.ProductID == nil {
					line.ProductID = util.StringPtr(strings.TrimSpace(id))
				}
				out = append(out, line)
			}
		})
	})
	return out
}

func parseXLSX(content []byte) ([]internal.OrderLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.OrderLine{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		cols := columns{name: -1}
		for i, row := range rows {
			cells := normalizeCells(row)
			if cols.name < 0 {
				if i < 3 {
					cols = inferColumns(cells)
				}
				continue
			}
			if line, ok := toOrderLine(cells, cols); ok {
				out = append(out, line)
			}
		}
	}
	return out, nil
}

func toOrderLine(cells []string, cols columns) (internal.OrderLine, bool) {
	name := pickCell(cells, cols.name)
	if name == "" || skipRowPattern.MatchString(name) {
		return internal.OrderLine{}, false
	}

	line := internal.OrderLine{Name: name, Quantity: 1, RawLine: strings.Join(cells, " | ")}
	if qty := util.ParseQty(pickCell(cells, cols.qty)); qty.Qty != nil && *qty.Qty > 0 {
		line.Quantity = *qty.Qty
	}
	unit, hasUnit := util.ParsePrice(pickCell(cells, cols.unitPrice))
	total, hasTotal := util.ParsePrice(pickCell(cells, cols.linePrice))
	switch {
	case hasTotal:
		line.LinePrice = total
		line.UnitPrice = total / line.Quantity
		if hasUnit {
			line.UnitPrice = unit
		}
	case hasUnit:
		line.UnitPrice = unit
		line.LinePrice = unit * line.Quantity
	default:
		return internal.OrderLine{}, false
	}
	if ref := pickCell(cells, cols.ref); ref != "" {
		line.ProductID = util.StringPtr(ref)
	}
	return line, true
}

func parseTextLines(text string) []internal.OrderLine {
	out := []internal.OrderLine{}
	for _, raw := range splitLines(text) {
		m := textLinePattern.FindStringSubmatch(raw)
		if len(m) != 4 {
			continue
		}
		qty := util.ParseQty(m[1])
		price, ok := util.ParsePrice(m[3])
		if qty.Qty == nil || *qty.Qty <= 0 || !ok {
			continue
		}
		out = append(out, internal.OrderLine{
			Name:      normalizeSpaces(m[2]),
			Quantity:  *qty.Qty,
			UnitPrice: price / *qty.Qty,
			LinePrice: price,
			RawLine:   raw,
		})
	}
	return out
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(strings.ReplaceAll(input, " ", " "), " "))
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, normalizeSpaces(c))
	}
	return out
}

func findHeaderIndex(headers []string, probes []string) int {
	return findHeaderIndexExcept(headers, probes, -1)
}

// findHeaderIndexExcept returns the first header matching the earliest
// probe, so probes are listed by preference.
func findHeaderIndexExcept(headers []string, probes []string, except int) int {
	for _, probe := range probes {
		for i, h := range headers {
			if i != except && strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	return ""
}
