package sdk

import (
	"errors"
	"os"
	"runtime"

	"github.com/otpless/loginpage/internal/events"
	"github.com/otpless/loginpage/pkg/types"
)

// Listener receives the terminal result of each Start. It is invoked on
// the SDK callback goroutine.
type Listener interface {
	OnResult(result types.AuthResult)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(types.AuthResult)

// OnResult implements Listener.
func (f ListenerFunc) OnResult(result types.AuthResult) { f(result) }

// EventListener receives login page events reported by web content.
type EventListener interface {
	OnEvent(event events.Event)
}

// Presenter shows the hosted login page. Present and Dismiss run on the
// SDK callback goroutine.
type Presenter interface {
	Present(loginURL string) error
	Dismiss()
}

// Device describes the host application and device.
type Device interface {
	PackageName() string
	Platform() string
	AppInfo() map[string]string
	AppSignature() string
	HasWhatsApp() bool
	// OpenURL hands a URL to the operating system.
	OpenURL(rawURL string) error
}

// ErrOpenURLUnsupported is returned by StaticDevice.OpenURL when no opener
// is configured.
var ErrOpenURLUnsupported = errors.New("open url not supported")

// StaticDevice is a Device backed by fixed values.
type StaticDevice struct {
	Package   string
	OS        string
	Info      map[string]string
	Signature string
	WhatsApp  bool
	Opener    func(rawURL string) error
}

var _ Device = (*StaticDevice)(nil)

// DefaultDevice describes the current process.
func DefaultDevice() *StaticDevice {
	host, _ := os.Hostname()
	return &StaticDevice{
		Package: "com.otpless.loginpage",
		OS:      runtime.GOOS,
		Info: map[string]string{
			"manufacturer": runtime.GOOS,
			"model":        runtime.GOARCH,
			"deviceId":     host,
		},
	}
}

func (d *StaticDevice) PackageName() string { return d.Package }

func (d *StaticDevice) Platform() string { return d.OS }

func (d *StaticDevice) AppInfo() map[string]string {
	out := make(map[string]string, len(d.Info))
	for k, v := range d.Info {
		out[k] = v
	}
	return out
}

func (d *StaticDevice) AppSignature() string { return d.Signature }

func (d *StaticDevice) HasWhatsApp() bool { return d.WhatsApp }

func (d *StaticDevice) OpenURL(rawURL string) error {
	if d.Opener == nil {
		return ErrOpenURLUnsupported
	}
	return d.Opener(rawURL)
}
