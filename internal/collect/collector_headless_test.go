package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

// Launching a real browser is slow and needs chrome on the host, so the
// render path only runs when COTADOR_HEADLESS_TEST is set.
func TestHeadlessCollector_Render(t *testing.T) {
	if os.Getenv("COTADOR_HEADLESS_TEST") == "" {
		t.Skip("set COTADOR_HEADLESS_TEST=1 to run browser tests")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div id="root"></div>
			<script>
				document.getElementById("root").innerHTML =
					'<div class="produto"><span class="descricao">Arroz Tipo 1 5kg</span><span class="preco">R$ 27,90</span></div>';
			</script>
		</body></html>`)
	}))
	defer ts.Close()

	pool := NewBrowserPool(1)
	defer pool.Close()

	c := NewHeadlessCollector(pool, 20*time.Second)
	src := Source{Name: "local", BaseURL: ts.URL, Paths: []string{"/"}, Selectors: testSelectors}

	got, err := c.FetchCandidates(context.Background(), src, "")
	if err != nil {
		t.Fatalf("FetchCandidates: %v", err)
	}
	if len(got) != 1 || got[0].Label != "Arroz Tipo 1 5kg" || got[0].Price != 27.9 {
		t.Fatalf("got %v", got)
	}
}
