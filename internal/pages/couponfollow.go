// Package pages holds page objects for couponfollow.com. Selectors stay in this
// package; callers work with named sections and operations.
package pages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/errs"
	"github.com/kuitang/couponfollow-e2e/internal/logutil"
	"github.com/kuitang/couponfollow-e2e/internal/navigate"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/urlutil"
)

// DefaultBaseURL is the live site.
const DefaultBaseURL = "https://couponfollow.com"

// Landing page selectors.
const (
	SearchFieldSelector   = "xpath=//input[@class='search-field']"
	TopDealSelector       = "xpath=//div[contains(@class,'top-deal')]"
	TrendingOfferSelector = "xpath=//article[@class='trending-offer']"
	StaffPickSelector     = "xpath=//div[@class='staff-pick']"
)

// DiscountPattern matches a staff pick's discount text.
var DiscountPattern = regexp.MustCompile(`((Save )(\d|\d\d)(% Off))|((Take \$)(\d|\d\d)( Off))`)

// Store is a store reachable from the search box and the header suffix its page shows.
type Store struct {
	Name         string
	HeaderSuffix string
}

// Heading is the full text the store page's h1 contains.
func (s Store) Heading() string {
	return s.Name + " " + s.HeaderSuffix
}

// Stores lists the stores exercised by the store page scenario.
var Stores = []Store{
	{Name: "American Eagle Outfitters", HeaderSuffix: "Coupon Codes"},
	{Name: "Chewy", HeaderSuffix: "Promo Codes & Coupons"},
	{Name: "eBay", HeaderSuffix: "Coupon & Promo Codes"},
	{Name: "Michael Kors", HeaderSuffix: "Coupon Codes"},
	{Name: "Target", HeaderSuffix: "Coupons & Promo Codes"},
}

// MainPage is the landing page with the store search box.
type MainPage struct {
	page    playwright.Page
	baseURL string
	nav     *navigate.Navigator

	searchBox playwright.Locator
}

// NewMainPage bakes the landing page locators for page. A nil navigator
// navigates without pacing or retry.
func NewMainPage(page playwright.Page, baseURL string, nav *navigate.Navigator) *MainPage {
	if nav == nil {
		nav = navigate.New(nil, navigate.Options{})
	}
	baseURL = urlutil.NormalizeBase(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &MainPage{
		page:      page,
		baseURL:   baseURL,
		nav:       nav,
		searchBox: page.Locator(SearchFieldSelector),
	}
}

// Page returns the underlying page.
func (m *MainPage) Page() playwright.Page {
	return m.page
}

// RootURL is where Open navigates.
func (m *MainPage) RootURL() string {
	return urlutil.Root(m.baseURL)
}

// Open navigates to the site root.
func (m *MainPage) Open(ctx context.Context) error {
	_, err := m.nav.Goto(ctx, m.page, m.RootURL())
	return err
}

// SearchAndSelect types text into the search box key by key and clicks the
// suggestion whose site name equals text exactly. The same page is returned.
func (m *MainPage) SearchAndSelect(ctx context.Context, text string) (playwright.Page, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.InvalidArgument, "search text must not be empty")
	}
	logger := obs.From(ctx).With("pkg", "pages", "search", text)

	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "search cancelled", err)
	}
	if err := m.searchBox.PressSequentially(text); err != nil {
		return nil, errs.FromEngine(err, "type into search box")
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "search cancelled", err)
	}
	if err := m.suggestion(text).Click(); err != nil {
		logger.Warn("suggestion_not_clicked", "error", logutil.TruncateForLog(err.Error(), 300))
		return nil, errs.FromEngine(err, fmt.Sprintf("select suggestion %q", text))
	}
	logger.Debug("suggestion_selected",
		"url", logutil.RedactURLForLog(m.page.URL()),
		"same_origin", urlutil.SameOrigin(m.baseURL, m.page.URL()),
	)
	return m.page, nil
}

func (m *MainPage) suggestion(text string) playwright.Locator {
	return m.page.Locator(fmt.Sprintf("xpath=//a[@class='suggestion-item' and @data-sitename=%s]", xpathLiteral(text)))
}

// TopDeals is the "Today's Top Coupons" cards.
func (m *MainPage) TopDeals() playwright.Locator {
	return m.page.Locator(TopDealSelector)
}

// TrendingOffers is the "Today's Trending Coupons" articles.
func (m *MainPage) TrendingOffers() playwright.Locator {
	return m.page.Locator(TrendingOfferSelector)
}

// StaffPicks is the "Staff Picks" cards.
func (m *MainPage) StaffPicks() playwright.Locator {
	return m.page.Locator(StaffPickSelector)
}

// StaffPickTexts returns the text of every staff pick.
func (m *MainPage) StaffPickTexts() ([]string, error) {
	texts, err := m.StaffPicks().AllTextContents()
	if err != nil {
		return nil, errs.FromEngine(err, "read staff picks")
	}
	return texts, nil
}

// xpathLiteral quotes s as an XPath 1.0 string literal, falling back to
// concat() when s holds both quote kinds.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
