// Package fixturesite serves a deterministic replica of the couponfollow.com
// markup the scenarios rely on, so the suite can run without the live site.
package fixturesite

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/kuitang/couponfollow-e2e/internal/obs"
	"github.com/kuitang/couponfollow-e2e/internal/pages"
)

const (
	TopDealCount       = 6
	TrendingOfferCount = 32
	DealsPerStore      = 3
)

// StaffPicks are the discount texts rendered in the staff picks section.
var StaffPicks = []string{"Save 20% Off", "Take $10 Off", "Save 5% Off", "Take $25 Off"}

type store struct {
	pages.Store
	Slug string
}

// Slug maps a store name to its page path segment.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

var landingTmpl = template.Must(template.New("landing").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>CouponFollow - Coupon Codes &amp; Promo Codes</title>
<style>
  #suggestions a { display: none; }
  #suggestions a.match { display: block; }
</style></head>
<body>
<header>
  <input class="search-field" type="text" placeholder="Search stores" autocomplete="off">
  <div id="suggestions">
  {{- range .Stores}}
    <a class="suggestion-item" data-sitename="{{.Name}}" href="/site/{{.Slug}}">{{.Name}}</a>
  {{- end}}
  </div>
</header>
<main>
  <section id="top-deals"><h2>Today's Top Coupons</h2>
  {{- range .TopDeals}}
    <div class="top-deal card">Top deal {{.}}</div>
  {{- end}}
  </section>
  <section id="trending"><h2>Today's Trending Coupons</h2>
  {{- range .Trending}}
    <article class="trending-offer">Trending offer {{.}}</article>
  {{- end}}
  </section>
  <section id="staff-picks"><h2>Staff Picks</h2>
  {{- range .StaffPicks}}
    <div class="staff-pick">{{.}}</div>
  {{- end}}
  </section>
</main>
<script>
  const input = document.querySelector('input.search-field');
  input.addEventListener('input', () => {
    const q = input.value.trim().toLowerCase();
    document.querySelectorAll('#suggestions a.suggestion-item').forEach((a) => {
      a.classList.toggle('match', q.length > 0 && a.dataset.sitename.toLowerCase().startsWith(q));
    });
  });
</script>
</body></html>`))

var storeTmpl = template.Must(template.New("store").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}} Coupons | CouponFollow</title></head>
<body>
<header><div class="logo"><img alt="{{.Name}}" width="64" height="64" src="data:image/gif;base64,R0lGODlhAQABAAAAACw="></div></header>
<h1>{{.Name}} {{.HeaderSuffix}}</h1>
<main>
{{- range .Deals}}
  <article class="offer type-deal">Deal {{.}}</article>
{{- end}}
  <section><h2>{{.Name}} Coupon Stats</h2><p>Total offers: {{len .Deals}}</p></section>
  <section><h2>Rate {{.Name}}</h2><p>&#9733;&#9733;&#9733;&#9733;&#9734;</p></section>
</main>
</body></html>`))

// Handler serves the landing page at / and store pages at /site/{slug}.
func Handler() http.Handler {
	stores := make([]store, 0, len(pages.Stores))
	bySlug := make(map[string]store, len(pages.Stores))
	for _, s := range pages.Stores {
		st := store{Store: s, Slug: Slug(s.Name)}
		stores = append(stores, st)
		bySlug[st.Slug] = st
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		render(w, r, landingTmpl, map[string]any{
			"Stores":     stores,
			"TopDeals":   seq(TopDealCount),
			"Trending":   seq(TrendingOfferCount),
			"StaffPicks": StaffPicks,
		})
	})
	mux.HandleFunc("GET /site/{slug}", func(w http.ResponseWriter, r *http.Request) {
		st, ok := bySlug[r.PathValue("slug")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		render(w, r, storeTmpl, map[string]any{
			"Name":         st.Name,
			"HeaderSuffix": st.HeaderSuffix,
			"Deals":        seq(DealsPerStore),
		})
	})

	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("fixturesite", mux))
}

func render(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "fixturesite", "template", tmpl.Name(), "error", err)
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
