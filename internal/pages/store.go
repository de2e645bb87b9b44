package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/couponfollow-e2e/internal/errs"
	"github.com/kuitang/couponfollow-e2e/internal/obs"
)

// StorePage is a single store's coupon page.
type StorePage struct {
	page   playwright.Page
	expect playwright.PlaywrightAssertions
}

// NewStorePage wraps page. Visibility and text assertions poll for up to timeout.
func NewStorePage(page playwright.Page, timeout time.Duration) *StorePage {
	return &StorePage{
		page:   page,
		expect: playwright.NewPlaywrightAssertions(float64(timeout.Milliseconds())),
	}
}

// Heading is the page's top heading.
func (s *StorePage) Heading() playwright.Locator {
	return s.page.Locator("xpath=//h1")
}

// Logo is the store logo container.
func (s *StorePage) Logo() playwright.Locator {
	return s.page.Locator("xpath=//div[@class='logo']")
}

// Deals is every deal article on the page.
func (s *StorePage) Deals() playwright.Locator {
	return s.page.Locator("xpath=//article[contains(@class,'type-deal')]")
}

// StatsSection is the "<store> Coupon Stats" heading.
func (s *StorePage) StatsSection(store string) playwright.Locator {
	return s.sectionHeading(store + " Coupon Stats")
}

// RateSection is the "Rate <store>" heading.
func (s *StorePage) RateSection(store string) playwright.Locator {
	return s.sectionHeading("Rate " + store)
}

func (s *StorePage) sectionHeading(text string) playwright.Locator {
	return s.page.Locator(fmt.Sprintf("xpath=//section/h2[text()=%s]", xpathLiteral(text)))
}

// Verify checks that the page is a properly displayed page for store: the
// heading names it, the logo and both stat sections are visible, and at least
// one deal is listed. The first failed expectation is returned.
func (s *StorePage) Verify(ctx context.Context, store Store) error {
	checks := []struct {
		what string
		run  func() error
	}{
		{"heading contains " + store.Heading(), func() error {
			return s.expect.Locator(s.Heading()).ToContainText(store.Heading())
		}},
		{"logo visible", func() error {
			return s.expect.Locator(s.Logo()).ToBeVisible()
		}},
		{"at least one deal", func() error {
			count, err := s.Deals().Count()
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("found %d deals", count)
			}
			return nil
		}},
		{store.Name + " Coupon Stats visible", func() error {
			return s.expect.Locator(s.StatsSection(store.Name)).ToBeVisible()
		}},
		{"Rate " + store.Name + " visible", func() error {
			return s.expect.Locator(s.RateSection(store.Name)).ToBeVisible()
		}},
	}

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.Unavailable, "verification cancelled", err)
		}
		if err := c.run(); err != nil {
			obs.From(ctx).Debug("store_check_failed", "pkg", "pages", "store", store.Name, "check", c.what)
			return errs.Wrap(errs.AssertionFailed, store.Name+": "+c.what, err)
		}
	}
	return nil
}
