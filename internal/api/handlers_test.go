package api_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/smartystreets/goconvey/convey"

	"movie-ranking/internal/api"
	"movie-ranking/internal/clients"
	"movie-ranking/internal/domain"
	"movie-ranking/internal/metrics"
	"movie-ranking/internal/store"
)

const imageBase = "https://image.tmdb.org/t/p/original"

type fakeMetadata struct {
	results    []domain.SearchResult
	details    map[string]*domain.MovieDetails
	searchErr  error
	detailsErr error
	queries    []string
}

func (f *fakeMetadata) Search(_ context.Context, query string) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeMetadata) FetchDetails(_ context.Context, externalID string) (*domain.MovieDetails, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	d, ok := f.details[externalID]
	if !ok {
		return nil, &clients.APIError{Op: "details", StatusCode: http.StatusNotFound}
	}
	return d, nil
}

type testApp struct {
	store  *store.MemoryMovieStore
	client *fakeMetadata
	router *mux.Router
}

func newTestApp() *testApp {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemoryMovieStore(logger)
	c := &fakeMetadata{
		results: []domain.SearchResult{
			{ExternalID: 438631, Title: "Dune", ReleaseDate: "2021-09-15", PosterPath: "/d5N.jpg"},
			{ExternalID: 841, Title: "Dune", ReleaseDate: "1984-12-14", PosterPath: "/dune84.jpg"},
		},
		details: map[string]*domain.MovieDetails{
			"438631": {ExternalID: 438631, Title: "Dune", ReleaseDate: "2021-10-01", PosterPath: "/d5N.jpg", Overview: "Paul Atreides..."},
			"1":      {ExternalID: 1, Title: "Undated", ReleaseDate: "", PosterPath: "/u.jpg"},
		},
	}
	m := metrics.NewManager()
	h, err := api.NewMovieHandler(s, c, logger, validator.New(), m, imageBase)
	convey.So(err, convey.ShouldBeNil)
	return &testApp{store: s, client: c, router: api.NewRouter(h, logger, m)}
}

func (a *testApp) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (a *testApp) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) seed(title string, year int, rating *float64) *domain.Movie {
	m := &domain.Movie{Title: title, Year: year, Description: title + " description", ImgURL: imageBase + "/" + title + ".jpg"}
	convey.So(a.store.Create(context.Background(), m), convey.ShouldBeNil)
	if rating != nil {
		convey.So(a.store.UpdateRatingReview(context.Background(), m.ID, *rating, "seeded"), convey.ShouldBeNil)
	}
	return m
}

func document(rec *httptest.ResponseRecorder) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	convey.So(err, convey.ShouldBeNil)
	return doc
}

// cards возвращает пары (id, ranking) в порядке вывода на странице списка.
func cards(doc *goquery.Document) [][2]string {
	var out [][2]string
	doc.Find(".card").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-movie-id")
		out = append(out, [2]string{id, strings.TrimSpace(s.Find(".ranking").Text())})
	})
	return out
}

func ptr[T any](v T) *T { return &v }

func TestAddFindFlow(t *testing.T) {
	convey.Convey("Given the movie app", t, func() {
		ctx := context.Background()
		app := newTestApp()

		convey.Convey("When searching for Dune and selecting a result", func() {
			rec := app.postForm("/add", url.Values{"title": {"Dune"}})
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(app.client.queries, convey.ShouldResemble, []string{"Dune"})

			doc := document(rec)
			links := doc.Find("a[data-external-id]")
			convey.So(links.Length(), convey.ShouldEqual, 2)
			href, _ := links.First().Attr("href")
			convey.So(href, convey.ShouldEqual, "/find?id=438631")

			findRec := app.get(href)

			convey.Convey("Then a new record is created and the user is sent to edit it", func() {
				convey.So(findRec.Code, convey.ShouldEqual, http.StatusFound)
				convey.So(findRec.Header().Get("Location"), convey.ShouldEqual, "/edit?id=1")

				movie, err := app.store.GetByID(ctx, 1)
				convey.So(err, convey.ShouldBeNil)
				convey.So(movie.Title, convey.ShouldEqual, "Dune")
				convey.So(movie.Year, convey.ShouldEqual, 2021)
				convey.So(movie.Description, convey.ShouldEqual, "Paul Atreides...")
				convey.So(movie.ImgURL, convey.ShouldEqual, imageBase+"/d5N.jpg")
				convey.So(movie.Rating, convey.ShouldBeNil)
				convey.So(movie.Review, convey.ShouldBeNil)

				editRec := app.get("/edit?id=1")
				convey.So(editRec.Code, convey.ShouldEqual, http.StatusOK)
				editDoc := document(editRec)
				action, _ := editDoc.Find("form").Attr("action")
				convey.So(action, convey.ShouldEqual, "/edit?id=1")
			})

			convey.Convey("Then selecting the same movie again is rejected as a conflict", func() {
				again := app.get(href)
				convey.So(again.Code, convey.ShouldEqual, http.StatusConflict)

				movies, err := app.store.ListAllSorted(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(movies, convey.ShouldHaveLength, 1)
			})
		})

		convey.Convey("When the search title is empty", func() {
			rec := app.postForm("/add", url.Values{"title": {""}})

			convey.Convey("Then the form is shown again with an inline error", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
				convey.So(document(rec).Find(`.error[data-field="title"]`).Text(), convey.ShouldEqual, "Enter movie title to search for it")
				convey.So(app.client.queries, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the search API fails", func() {
			app.client.searchErr = &clients.APIError{Op: "search", StatusCode: http.StatusUnauthorized}
			rec := app.postForm("/add", url.Values{"title": {"Dune"}})
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadGateway)
		})

		convey.Convey("When the details API fails", func() {
			app.client.detailsErr = errors.New("connection reset")
			rec := app.get("/find?id=438631")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadGateway)
			movies, _ := app.store.ListAllSorted(ctx)
			convey.So(movies, convey.ShouldBeEmpty)
		})

		convey.Convey("When the details have no release year", func() {
			rec := app.get("/find?id=1")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusBadGateway)
			movies, _ := app.store.ListAllSorted(ctx)
			convey.So(movies, convey.ShouldBeEmpty)
		})

		convey.Convey("When find is called without an id", func() {
			convey.So(app.get("/find").Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When the add page is opened", func() {
			rec := app.get("/add")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(document(rec).Find(`input[name="title"]`).Length(), convey.ShouldEqual, 1)
		})
	})
}

func TestEditHandler(t *testing.T) {
	convey.Convey("Given a stored movie", t, func() {
		ctx := context.Background()
		app := newTestApp()
		movie := app.seed("Arrival", 2016, nil)
		target := "/edit?id=1"

		convey.Convey("When submitting a rating below range", func() {
			rec := app.postForm(target, url.Values{"rating": {"0.5"}, "review": {"Great"}})

			convey.Convey("Then the form is re-rendered with an error and nothing changes", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
				doc := document(rec)
				convey.So(doc.Find(`.error[data-field="rating"]`).Text(), convey.ShouldEqual, "Rating can only be from 1 to 10")
				value, _ := doc.Find(`input[name="review"]`).Attr("value")
				convey.So(value, convey.ShouldEqual, "Great")

				got, err := app.store.GetByID(ctx, movie.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Rating, convey.ShouldBeNil)
				convey.So(got.Review, convey.ShouldBeNil)
			})
		})

		convey.Convey("When submitting a review longer than the stored column allows", func() {
			rec := app.postForm(target, url.Values{"rating": {"8"}, "review": {strings.Repeat("x", 400)}})

			convey.Convey("Then the form is re-rendered with a length error and nothing changes", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
				doc := document(rec)
				convey.So(doc.Find(`.error[data-field="review"]`).Text(), convey.ShouldEqual, "Review can be at most 250 characters")

				got, err := app.store.GetByID(ctx, movie.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Rating, convey.ShouldBeNil)
				convey.So(got.Review, convey.ShouldBeNil)
			})
		})

		convey.Convey("When submitting a valid rating and review", func() {
			rec := app.postForm(target, url.Values{"rating": {"7.5"}, "review": {"Great"}})

			convey.Convey("Then exactly rating and review are updated", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusFound)
				convey.So(rec.Header().Get("Location"), convey.ShouldEqual, "/")

				got, err := app.store.GetByID(ctx, movie.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(*got.Rating, convey.ShouldEqual, 7.5)
				convey.So(*got.Review, convey.ShouldEqual, "Great")
				convey.So(got.Title, convey.ShouldEqual, movie.Title)
				convey.So(got.Year, convey.ShouldEqual, movie.Year)
				convey.So(got.Description, convey.ShouldEqual, movie.Description)
				convey.So(got.ImgURL, convey.ShouldEqual, movie.ImgURL)
			})

			convey.Convey("Then the edit form shows the saved values", func() {
				doc := document(app.get(target))
				rating, _ := doc.Find(`input[name="rating"]`).Attr("value")
				convey.So(rating, convey.ShouldEqual, "7.5")
			})
		})

		convey.Convey("When the id does not resolve", func() {
			convey.So(app.get("/edit?id=99").Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(app.postForm("/edit?id=99", url.Values{"rating": {"5"}, "review": {"ok"}}).Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(app.get("/edit?id=abc").Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(app.get("/edit").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestDeleteHandler(t *testing.T) {
	convey.Convey("Given a stored movie", t, func() {
		ctx := context.Background()
		app := newTestApp()
		movie := app.seed("Arrival", 2016, nil)

		convey.Convey("When deleting a nonexistent id", func() {
			rec := app.get("/delete?id=42")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			_, err := app.store.GetByID(ctx, movie.ID)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("When deleting the movie", func() {
			rec := app.get("/delete?id=1")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusFound)
			convey.So(rec.Header().Get("Location"), convey.ShouldEqual, "/")
			_, err := app.store.GetByID(ctx, movie.ID)
			convey.So(err, convey.ShouldEqual, store.ErrMovieNotFound)
		})
	})
}

func TestListRoundTrip(t *testing.T) {
	convey.Convey("Given two rated movies", t, func() {
		app := newTestApp()
		app.seed("Alpha", 2000, ptr(5.0))
		app.seed("Beta", 1999, ptr(8.0))

		convey.Convey("When the list is rendered", func() {
			rec := app.get("/")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			doc := document(rec)

			convey.Convey("Then the higher rated movie ranks first", func() {
				convey.So(cards(doc), convey.ShouldResemble, [][2]string{{"1", "2"}, {"2", "1"}})
				convey.So(strings.TrimSpace(doc.Find("h1").Text()), convey.ShouldEqual, "My Top 2 Movies")
			})

			convey.Convey("Then editing a rating moves the movie on the next render", func() {
				edit := app.postForm("/edit?id=1", url.Values{"rating": {"9"}, "review": {"Now my favourite"}})
				convey.So(edit.Code, convey.ShouldEqual, http.StatusFound)

				again := document(app.get("/"))
				convey.So(cards(again), convey.ShouldResemble, [][2]string{{"2", "2"}, {"1", "1"}})
				convey.So(again.Find(`.card[data-movie-id="1"] .review`).Text(), convey.ShouldEqual, "Now my favourite")
			})
		})
	})
}

func TestServiceEndpoints(t *testing.T) {
	convey.Convey("Given the movie app", t, func() {
		app := newTestApp()

		convey.Convey("Health reports ok", func() {
			rec := app.get("/healthz")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"status":"ok"`)
		})

		convey.Convey("Metrics include request and ranking counters", func() {
			app.get("/")
			body := app.get("/metrics").Body.String()
			convey.So(body, convey.ShouldContainSubstring, "movies_ranking_recomputes_total 1")
			convey.So(body, convey.ShouldContainSubstring, `movies_http_requests_total{method="GET",route="/",status="200"} 1`)
		})

		convey.Convey("A request id is generated or echoed", func() {
			convey.So(app.get("/").Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", "req-123")
			rec := httptest.NewRecorder()
			app.router.ServeHTTP(rec, req)
			convey.So(rec.Header().Get("X-Request-ID"), convey.ShouldEqual, "req-123")
		})

		convey.Convey("Unknown paths render the 404 page", func() {
			rec := app.get("/nope")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(strings.TrimSpace(document(rec).Find(".message").Text()), convey.ShouldEqual, "Page not found")
		})

		convey.Convey("Unknown paths still get a request id and are counted", func() {
			rec := app.get("/nope")
			convey.So(rec.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)

			body := app.get("/metrics").Body.String()
			convey.So(body, convey.ShouldContainSubstring, `movies_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
		})

		convey.Convey("A wrong method on a known path renders the 405 page", func() {
			rec := app.postForm("/delete?id=1", url.Values{})
			convey.So(rec.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			convey.So(rec.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
			convey.So(strings.TrimSpace(document(rec).Find(".message").Text()), convey.ShouldEqual, "Method not allowed")

			body := app.get("/metrics").Body.String()
			convey.So(body, convey.ShouldContainSubstring, `movies_http_requests_total{method="POST",route="unmatched",status="405"} 1`)
		})
	})
}
