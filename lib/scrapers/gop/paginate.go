package gop

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cpim-backend/lib/htmlutil"
)

func (c *Client) viewPath(view View) string {
	if view == ViewAllFilings {
		return c.sel.AllFilingsPath
	}
	return c.sel.MyTraysPath
}

// nextPageHref probes for an enabled next-page link and resolves it
// against the portal base, so relative and absolute hrefs both work.
func (c *Client) nextPageHref(doc *goquery.Document) (string, bool) {
	for _, sel := range c.sel.NextPage {
		link := doc.Find(sel).First()
		if link.Length() == 0 {
			continue
		}
		href := link.AttrOr("href", "")
		if href == "" || href == "#" {
			continue
		}
		resolved, err := c.baseUrl.Parse(href)
		if err != nil {
			continue
		}
		return resolved.RequestURI(), true
	}
	return "", false
}

// CollectAll walks a grid view page by page and returns every scraped
// row. It stops when no enabled next link exists, when following the
// link does not advance the active-page indicator, or when the page
// ceiling is hit.
func (c *Client) CollectAll(ctx context.Context, view View) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "client:CollectAll")
	defer span.End()
	span.SetAttributes(attribute.String("view", string(view)))

	var all []Row
	path := c.viewPath(view)
	lastActive := ""

	for page := 1; page <= c.sel.MaxPages; page++ {
		doc, err := c.GetProtected(ctx, path)
		if err != nil {
			span.SetStatus(codes.Error, "failed to fetch grid page")
			return all, err
		}

		active := htmlutil.SelectionText(doc.Find(c.sel.ActivePage))
		if page > 1 && active != "" && active == lastActive {
			// following the link changed nothing, assume the end
			break
		}
		lastActive = active

		rows := ExtractRows(doc, view, c.sel)
		all = append(all, rows...)
		slog.DebugContext(ctx, "scraped grid page", "view", view, "page", page, "rows", len(rows))

		next, ok := c.nextPageHref(doc)
		if !ok {
			break
		}
		path = next
	}

	span.SetAttributes(attribute.Int("rows", len(all)))
	return all, nil
}
