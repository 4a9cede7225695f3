package gop

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNoFilterInput means the all-filings grid rendered without any
// recognizable filter input. Callers treat it as per-case recoverable,
// not fatal to a run.
var ErrNoFilterInput = errors.New("gop: no filter input found on the all-filings grid")

// SearchFiltered narrows the all-filings grid down to one tracking
// number. The grid filter row submits as a GET form, so "type into the
// input and press enter" reduces to discovering the input's form name
// and issuing the query. Only exact nro_sistema matches are returned,
// the filter may match substrings.
func (c *Client) SearchFiltered(ctx context.Context, nroSistema string) ([]Row, error) {
	ctx, span := tracer.Start(ctx, "client:SearchFiltered")
	defer span.End()
	span.SetAttributes(attribute.String("nro_sistema", nroSistema))

	doc, err := c.GetProtected(ctx, c.sel.AllFilingsPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch all-filings grid")
		return nil, err
	}

	field, ok := probeInputName(doc, c.sel.FilterInputs)
	if !ok {
		span.SetStatus(codes.Error, "no filter input")
		return nil, ErrNoFilterInput
	}

	query := url.Values{}
	query.Set(field, nroSistema)
	filtered, err := c.GetProtected(ctx, fmt.Sprintf("%s?%s", c.sel.AllFilingsPath, query.Encode()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch filtered grid")
		return nil, err
	}

	var out []Row
	for _, row := range ExtractRows(filtered, ViewAllFilings, c.sel) {
		if row.NroSistema == nroSistema {
			out = append(out, row)
		}
	}
	span.SetAttributes(attribute.Int("rows", len(out)))
	return out, nil
}
