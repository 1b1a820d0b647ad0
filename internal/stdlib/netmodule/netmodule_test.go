package netmodule_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"nyx/internal/bytecode"
	"nyx/internal/compiler"
	"nyx/internal/lexer"
	"nyx/internal/parser"
	"nyx/internal/stdlib/netmodule"
	"nyx/internal/vm"
)

// echoServer upgrades every connection and echoes back whatever text frame
// it receives, uppercased, so a script can assert on a round trip.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(strings.ToUpper(string(msg))))
	}))
	return srv
}

func runSource(t *testing.T, src string) []string {
	t.Helper()
	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.New(tokens)
	prog := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors: %v", p.Errors)
	}
	c := compiler.New("test.nyx")
	chunk := c.Compile(prog)
	if len(c.Errors) > 0 {
		t.Fatalf("compile errors: %v", c.Errors)
	}
	bprog := bytecode.NewProgram()
	entry := bprog.Append(chunk)

	machine := vm.New(vm.DefaultConfig(), "test.nyx")
	netmodule.Install(machine)
	var logs []string
	machine.Stdout = func(s string) { logs = append(logs, s) }

	if _, err := machine.Run(bprog, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return logs
}

func TestWebSocketConnectSendRecvRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	logs := runSource(t, `
		async fn main() {
			let conn = await net.ws_connect("`+wsURL+`");
			await conn.send("hello");
			let reply = await conn.recv();
			log reply;
			await conn.close();
		}
		main();
	`)
	if len(logs) != 1 || logs[0] != "HELLO" {
		t.Fatalf("expected echoed uppercase reply, got %v", logs)
	}
}

func TestWebSocketConnectRejectsBadURL(t *testing.T) {
	logs := runSource(t, `
		async fn main() {
			try {
				await net.ws_connect("ws://127.0.0.1:1/does-not-exist");
				log "unreachable";
			} catch (e) {
				log "caught";
			}
		}
		main();
	`)
	if len(logs) != 1 || logs[0] != "caught" {
		t.Fatalf("expected a dial failure to reject, got %v", logs)
	}
}
