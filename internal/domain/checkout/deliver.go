package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/veristore/veristore/internal/delivery"
	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/fulfillment"
)

// deliver sends codes grouped by product description over every preferred
// channel the contact has an address for. Failures are logged and not
// retried.
func (c *Coordinator) deliver(
	ctx context.Context,
	contact fulfillment.Contact,
	prefs fulfillment.DeliveryPreferences,
	reference string,
	lines []fulfillment.Line,
) {
	products := groupCodes(lines, c.pricing.Describe)
	if len(products) == 0 {
		return
	}

	var recipients []delivery.Recipient
	if prefs.ByEmail && strings.TrimSpace(contact.Email) != "" {
		recipients = append(recipients, delivery.Recipient{Channel: delivery.ChannelEmail, Address: strings.TrimSpace(contact.Email)})
	}
	if prefs.BySMS && strings.TrimSpace(contact.MSISDN) != "" {
		recipients = append(recipients, delivery.Recipient{Channel: delivery.ChannelSMS, Address: strings.TrimSpace(contact.MSISDN)})
	}

	for _, r := range recipients {
		err := c.delivery.SendCodes(ctx, r, reference, products)
		c.tel.deliveries.Add(ctx, 1, attrs(
			attribute.String("channel", string(r.Channel)),
			attribute.Bool("ok", err == nil),
		))
		if err != nil {
			zctx.From(ctx).Warn("Delivery failed",
				zap.String("channel", string(r.Channel)),
				zap.String("reference", reference),
				zap.Error(err),
			)
		}
	}
}

// groupCodes merges line codes under their product description, keeping the
// order in which descriptions first appear. Lines without codes are skipped.
func groupCodes(lines []fulfillment.Line, describe func(catalog.Key) string) []delivery.ProductCodes {
	var out []delivery.ProductCodes
	index := make(map[string]int)
	for _, l := range lines {
		if len(l.Codes) == 0 {
			continue
		}
		desc := describe(l.Key)
		i, ok := index[desc]
		if !ok {
			i = len(out)
			index[desc] = i
			out = append(out, delivery.ProductCodes{Description: desc})
		}
		out[i].Codes = append(out[i].Codes, l.Codes...)
	}
	return out
}
