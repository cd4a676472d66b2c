package deviceconfig

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rackops/imdcfg/internal/plan"
)

func TestFirmwareVersion(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr func(error) bool
	}{
		{name: "valid", body: versionResponse, want: "6.1.2"},
		{name: "device failure", body: `{"retCode":1,"retMsg":"Not ready"}`, want: UnknownFirmware, wantErr: errorType(ErrTypeDevice)},
		{name: "invalid version", body: `{"retCode":0,"retMsg":"OK","data":"beta"}`, want: UnknownFirmware, wantErr: errorType(ErrTypeValidation)},
		{name: "missing data", body: `{"retCode":0,"retMsg":"OK"}`, want: UnknownFirmware, wantErr: errorType(ErrTypeParse)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, seen := newMockIMD(t, func(*http.Request) (int, string) { return http.StatusOK, tt.body })
			client := NewClientWithURL(srv.URL + "/api/")

			got, err := client.FirmwareVersion(context.Background())
			if got != tt.want {
				t.Errorf("FirmwareVersion() = %q, want %q", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("FirmwareVersion() error = %v", err)
			}
			if tt.wantErr != nil && !tt.wantErr(err) {
				t.Errorf("FirmwareVersion() error = %v, want matching error", err)
			}
			if reqs := seen(); len(reqs) != 1 || reqs[0].Path != "/api/sys/version" {
				t.Errorf("requests = %+v, want GET /api/sys/version", reqs)
			}
		})
	}
}

func TestAddCredentials(t *testing.T) {
	srv, seen := newMockIMD(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"retCode":4,"retMsg":"Insufficient permissions"}`
	})
	client := NewClientWithURL(srv.URL + "/api/")

	if err := client.AddCredentials(context.Background(), "admin", "pw"); err != nil {
		t.Fatalf("AddCredentials() on existing account error = %v, want nil", err)
	}
	req := seen()[0]
	if req.Path != "/api/auth" || req.Body["cmd"] != "add" {
		t.Errorf("request = %+v", req)
	}
	data, _ := req.Body["data"].(map[string]any)
	if data["username"] != "admin" || data["password"] != "pw" {
		t.Errorf("data = %v", req.Body["data"])
	}
}

func TestSetPassword(t *testing.T) {
	srv, seen := newMockIMD(t, okReply)
	client := NewClientWithURL(srv.URL + "/api/")
	client.SetAuth("admin", "old")

	if err := client.SetPassword(context.Background(), "admin", "new"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	req := seen()[0]
	if req.Path != "/api/auth/admin" || req.Body["cmd"] != "set" || req.Body["password"] != "old" {
		t.Errorf("request = %+v", req)
	}
	data, _ := req.Body["data"].(map[string]any)
	if data["password"] != "new" {
		t.Errorf("data = %v, want new password", req.Body["data"])
	}
}

func TestFactoryResetFailureKeepsRetMsg(t *testing.T) {
	srv, _ := newMockIMD(t, func(*http.Request) (int, string) {
		return http.StatusOK, `{"retCode":7,"retMsg":"Reset not permitted"}`
	})
	client := NewClientWithURL(srv.URL + "/api/")

	err := client.FactoryReset(context.Background(), plan.APICall{
		Cmd: plan.CmdSet, Method: "post", APIPath: "sys", Data: plan.ObjectPayload(map[string]any{"action": "reset"}),
	})
	devErr, ok := asDeviceError(err)
	if !ok || devErr.RetMsg != "Reset not permitted" || devErr.RetCode != 7 {
		t.Errorf("FactoryReset() error = %v, want device error with retMsg", err)
	}
}

func TestUploadFirmware(t *testing.T) {
	image := []byte("firmware-image-bytes")
	path := filepath.Join(t.TempDir(), "geist-i03-6_1_2.firmware")
	if err := os.WriteFile(path, image, 0600); err != nil {
		t.Fatal(err)
	}

	var (
		mu      sync.Mutex
		gotFile []byte
		gotUser string
		gotName string
	)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/firmware" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		gotUser = r.FormValue("username")
		mu.Unlock()
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		mu.Lock()
		gotName = hdr.Filename
		gotFile, _ = io.ReadAll(f)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"retCode":0,"retMsg":"Upload complete"}`)
	}))
	defer srv.Close()

	client := NewClientWithURL(srv.URL + "/api/")
	client.SetAuth("admin", "pw")

	var lastSent atomic.Int64
	err := client.UploadFirmware(context.Background(), "/upload/firmware", path, lastSent.Store)
	if err != nil {
		t.Fatalf("UploadFirmware() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if string(gotFile) != string(image) {
		t.Errorf("uploaded %q, want %q", gotFile, image)
	}
	if gotUser != "admin" || gotName != "geist-i03-6_1_2.firmware" {
		t.Errorf("username = %q, filename = %q", gotUser, gotName)
	}
	if got := lastSent.Load(); got != int64(len(image)) {
		t.Errorf("progress reported %d bytes, want %d", got, len(image))
	}
}

func TestUploadFirmwareMissingFile(t *testing.T) {
	client := NewClient(DefaultIP)
	if err := client.UploadFirmware(context.Background(), "/upload/firmware", filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("UploadFirmware() with a missing file should fail")
	}
}
