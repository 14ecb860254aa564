package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"txfix/pkg/config"
	"txfix/pkg/errcode"
	"txfix/pkg/feebump"
	"txfix/pkg/logging"
	"txfix/pkg/parser"
	"txfix/pkg/service"
	"txfix/pkg/types"
)

var log = logging.Logger("WEB")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.DefaultWebOptions()
	p := flags.NewParser(&cfg, flags.Default)
	if _, err := config.Parse(p, os.Args[1:]); err != nil {
		switch {
		case errors.Is(err, config.ErrShowSubsystems):
			fmt.Println("Supported subsystems", logging.SupportedSubsystems())
			return nil
		case config.IsHelp(err):
			return nil
		}
		return err
	}
	if err := cfg.InitLogging(); err != nil {
		return err
	}
	defer logging.Close()

	svc, err := cfg.Service()
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := newRouter(svc, cfg.AllowOrigins)

	// Serve React build (if exists)
	if _, err := os.Stat("web/build"); err == nil {
		r.Static("/static", "web/build/static")
		r.StaticFile("/", "web/build/index.html")
		r.NoRoute(func(c *gin.Context) {
			c.File("web/build/index.html")
		})
	} else {
		// Fallback: simple HTML page
		r.GET("/", func(c *gin.Context) {
			c.Data(200, "text/html", []byte(fallbackHTML))
		})
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infof("listening on http://%s (network %s)", cfg.Listen, svc.Network())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(svc *service.Service, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	h := &handlers{svc: svc}

	// Health check endpoint
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "network": svc.Network()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/analyze", handleAnalyze)
	api.GET("/diagnose/:txid", h.diagnose)
	api.GET("/diagnose/:txid/stream", h.diagnoseStream)
	api.POST("/psbt/rbf", h.rbf)
	api.POST("/psbt/cpfp", h.cpfp)
	api.POST("/broadcast", h.broadcast)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type errorResponse struct {
	OK    bool             `json:"ok"`
	Error *types.ErrorInfo `json:"error"`
}

func abortWithError(c *gin.Context, err error) {
	code, status := errcode.Lookup(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error: &types.ErrorInfo{Code: code, Message: err.Error()},
	})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, fmt.Errorf("%w: %w", feebump.ErrInvalidParams, err))
}

type handlers struct {
	svc *service.Service
}

func (h *handlers) diagnose(c *gin.Context) {
	res, err := h.svc.Diagnose(c.Request.Context(), c.Param("txid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// diagnoseStream sends each check as a "check" event, then a "verdict" or
// an "error" event. A client disconnect cancels the run.
func (h *handlers) diagnoseStream(c *gin.Context) {
	events, err := h.svc.Stream(c.Request.Context(), c.Param("txid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	for ev := range events {
		switch {
		case ev.Err != nil:
			c.SSEvent("error", errcode.Info(ev.Err))
		case ev.Result != nil:
			c.SSEvent("verdict", ev.Result)
		case ev.Check != nil:
			c.SSEvent("check", ev.Check)
		}
		c.Writer.Flush()
	}
}

type rbfRequest struct {
	Txid    string  `json:"txid" binding:"required"`
	FeeRate float64 `json:"feeRate" binding:"gte=0"`
	QR      bool    `json:"qr"`
}

type cpfpRequest struct {
	Txid        string  `json:"txid" binding:"required"`
	FeeRate     float64 `json:"feeRate" binding:"gte=0"`
	OutputIndex *uint32 `json:"outputIndex"`
	Destination string  `json:"destination"`
	QR          bool    `json:"qr"`
}

type psbtResponse struct {
	*types.PsbtBuildResult
	// QRPng is a base64 PNG of the PSBT, when requested.
	QRPng string `json:"qrPng,omitempty"`
}

func (h *handlers) rbf(c *gin.Context) {
	var req rbfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.RBF(c.Request.Context(), req.Txid, req.FeeRate)
	h.respondPSBT(c, res, err, req.QR)
}

func (h *handlers) cpfp(c *gin.Context) {
	var req cpfpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.CPFP(c.Request.Context(), service.CPFPRequest{
		Txid:        req.Txid,
		FeeRate:     req.FeeRate,
		OutputIndex: req.OutputIndex,
		Destination: req.Destination,
	})
	h.respondPSBT(c, res, err, req.QR)
}

func (h *handlers) respondPSBT(c *gin.Context, res *types.PsbtBuildResult, err error, qr bool) {
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp := psbtResponse{PsbtBuildResult: res}
	if qr {
		png, err := feebump.EncodeQR(res, feebump.DefaultQRSize)
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.QRPng = base64.StdEncoding.EncodeToString(png)
	}
	c.JSON(http.StatusOK, resp)
}

type broadcastRequest struct {
	Hex string `json:"hex" binding:"required"`
}

func (h *handlers) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	txid, err := h.svc.Broadcast(c.Request.Context(), req.Hex)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "txid": txid})
}

// handleAnalyze decodes a raw transaction fixture without touching the
// provider.
func handleAnalyze(c *gin.Context) {
	var fixture types.Fixture
	if err := c.ShouldBindJSON(&fixture); err != nil {
		badRequest(c, err)
		return
	}
	result, err := parser.ParseTransaction(fixture)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

const fallbackHTML = `<!DOCTYPE html>
<html>
<head>
    <title>txfix - Stuck Bitcoin Transaction Doctor</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #f7931a; }
        input { width: 100%; font-family: monospace; padding: 6px; }
        button { background: #f7931a; color: white; padding: 10px 20px; border: none; cursor: pointer; }
        pre { background: #f5f5f5; padding: 15px; overflow-x: auto; }
    </style>
</head>
<body>
    <h1>txfix</h1>
    <p>Paste the txid of an unconfirmed transaction:</p>
    <input id="txid" placeholder="64 hex characters">
    <br><br>
    <button onclick="diagnose()">Diagnose</button>
    <h2>Checks:</h2>
    <pre id="checks"></pre>
    <h2>Verdict:</h2>
    <pre id="output">Results will appear here...</pre>

    <script>
        function diagnose() {
            const txid = document.getElementById('txid').value.trim();
            const checks = document.getElementById('checks');
            const output = document.getElementById('output');
            checks.textContent = '';
            output.textContent = 'Diagnosing...';

            const es = new EventSource('/api/diagnose/' + txid + '/stream');
            es.addEventListener('check', (e) => {
                const c = JSON.parse(e.data);
                checks.textContent += c.label + ' - ' + c.detail + '\n';
            });
            es.addEventListener('verdict', (e) => {
                output.textContent = JSON.stringify(JSON.parse(e.data).verdict, null, 2);
                es.close();
            });
            es.addEventListener('error', (e) => {
                output.textContent = e.data ? 'Error: ' + e.data : 'Connection failed';
                es.close();
            });
        }
    </script>
</body>
</html>`
