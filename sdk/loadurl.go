package sdk

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

const sdkType = "lp"

// loadParams are the signals embedded in the login page URL.
type loadParams struct {
	PackageName     string
	LoginURI        string
	HasWhatsApp     bool
	Platform        string
	AppInfo         map[string]string
	InstallationID  string
	TrackingID      string
	CellularEnabled bool
	Extras          map[string]string
	RoomID          string
}

// startURL is the page the flow presents before query parameters are added.
func startURL(loginPageURL, baseURL, appID string) string {
	if baseURL != "" {
		return baseURL + "?appid=" + url.QueryEscape(appID)
	}
	return loginPageURL + appID
}

// buildLoadingURL appends the device and flow signals to start. Existing
// query parameters on start are kept.
func buildLoadingURL(start string, p loadParams) (string, error) {
	u, err := url.Parse(start)
	if err != nil {
		return "", fmt.Errorf("parse start url: %w", err)
	}
	q := u.Query()
	if p.PackageName != "" {
		q.Set("packageName", p.PackageName)
	}
	q.Set("otpl_login_uri", p.LoginURI)
	q.Set("otpl_instl_wa", strconv.FormatBool(p.HasWhatsApp))
	q.Set("type", "JSN")
	q.Set("otpl_platform", p.Platform)
	q.Set("otpl_sdk_type", sdkType)
	q.Set("envoiSupported", "true")

	appInfo, err := json.Marshal(p.AppInfo)
	if err != nil {
		return "", fmt.Errorf("encode app info: %w", err)
	}
	q.Set("otpl_appinfo", base64.RawURLEncoding.EncodeToString(appInfo))

	if p.InstallationID != "" {
		q.Set("inid", p.InstallationID)
	}
	if p.TrackingID != "" {
		q.Set("tsid", p.TrackingID)
	}
	q.Set("otpl_isCellularDataEnabled", strconv.FormatBool(p.CellularEnabled))

	if len(p.Extras) > 0 {
		extras, err := json.Marshal(loginExtras(p.Extras))
		if err != nil {
			return "", fmt.Errorf("encode extras: %w", err)
		}
		q.Set("otpl_extras", base64.StdEncoding.EncodeToString(extras))
	}
	if p.RoomID != "" {
		q.Set("otpless_connect_id", p.RoomID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
