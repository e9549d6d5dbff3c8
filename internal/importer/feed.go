package importer

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/procurement-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Feed is a shop's full catalog snapshot.
type Feed struct {
	Shop       string
	Categories []FeedCategory
	Goods      []FeedGood
	// BadGoods holds goods that could not be decoded; they are skipped.
	BadGoods []error
}

type FeedCategory struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

type FeedGood struct {
	ID         int64          `yaml:"id"`
	Category   int64          `yaml:"category"`
	Name       string         `yaml:"name"`
	Model      string         `yaml:"model"`
	Price      int64          `yaml:"price"`
	PriceRRC   int64          `yaml:"price_rrc"`
	Quantity   int            `yaml:"quantity"`
	Parameters map[string]any `yaml:"parameters"`
}

type rawFeed struct {
	Shop       string         `yaml:"shop"`
	Categories []FeedCategory `yaml:"categories"`
	Goods      []yaml.Node    `yaml:"goods"`
}

// ParseFeed decodes a YAML feed. Goods are decoded one by one so a malformed
// good lands in BadGoods instead of failing the whole document.
func ParseFeed(data []byte) (*Feed, error) {
	var raw rawFeed
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeImportFatal, err, "malformed feed")
	}
	shop := strings.TrimSpace(raw.Shop)
	if shop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeImportFatal, "feed has no shop")
	}

	feed := &Feed{Shop: shop, Categories: raw.Categories}
	for i := range raw.Goods {
		var good FeedGood
		if err := raw.Goods[i].Decode(&good); err != nil {
			feed.BadGoods = append(feed.BadGoods, fmt.Errorf("goods[%d] line %d: %w", i, raw.Goods[i].Line, err))
			continue
		}
		feed.Goods = append(feed.Goods, good)
	}
	return feed, nil
}

// BadGoodsError folds the decode failures into one error, nil when none.
func (f *Feed) BadGoodsError() error {
	return multierr.Combine(f.BadGoods...)
}

// Listings converts the goods into catalog inputs.
func (f *Feed) Listings() []catalog.ListingInput {
	out := make([]catalog.ListingInput, 0, len(f.Goods))
	for _, g := range f.Goods {
		params := make(map[string]string, len(g.Parameters))
		for name, value := range g.Parameters {
			params[name] = formatParameter(value)
		}
		out = append(out, catalog.ListingInput{
			ExternalID: g.ID,
			CategoryID: g.Category,
			Name:       g.Name,
			Model:      g.Model,
			Price:      g.Price,
			PriceRRC:   g.PriceRRC,
			Quantity:   g.Quantity,
			Parameters: params,
		})
	}
	return out
}

func formatParameter(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
