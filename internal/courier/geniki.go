package courier

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	genikiDefaultURL = "https://voucher.taxydromiki.gr/JobServicesV2.asmx"
	genikiNS         = "http://voucher.taxydromiki.gr/JobServicesV2.asmx"
)

// Geniki talks to the Geniki Taxydromiki SOAP voucher service. Each call
// first authenticates for a key, then invokes the job operation.
type Geniki struct {
	Username       string
	Password       string
	ApplicationKey string

	BaseURL    string
	HTTPClient *http.Client
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	NS      string   `xml:"xmlns:soap,attr"`
	Body    soapBody `xml:"soap:Body"`
}

type soapBody struct {
	Inner any
}

func (g *Geniki) client() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (g *Geniki) baseURL() string {
	if g.BaseURL != "" {
		return g.BaseURL
	}
	return genikiDefaultURL
}

func (g *Geniki) call(ctx context.Context, action string, body any) ([]byte, error) {
	env := soapEnvelope{
		NS:   "http://schemas.xmlsoap.org/soap/envelope/",
		Body: soapBody{Inner: body},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", genikiNS+"/"+action)

	resp, err := g.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type genikiAuthenticate struct {
	XMLName        xml.Name `xml:"Authenticate"`
	NS             string   `xml:"xmlns,attr"`
	Username       string   `xml:"sUsrName"`
	Password       string   `xml:"sUsrPwd"`
	ApplicationKey string   `xml:"applicationKey"`
}

func (g *Geniki) authenticate(ctx context.Context) (string, error) {
	raw, err := g.call(ctx, "Authenticate", genikiAuthenticate{
		NS:             genikiNS,
		Username:       g.Username,
		Password:       g.Password,
		ApplicationKey: g.ApplicationKey,
	})
	if err != nil {
		return "", err
	}

	key := findElement(raw, "Key")
	if key == "" {
		return "", fmt.Errorf("courier: geniki: authentication failed")
	}
	return key, nil
}

type genikiCreateJob struct {
	XMLName xml.Name `xml:"CreateJob"`
	NS      string   `xml:"xmlns,attr"`
	AuthKey string   `xml:"authKey"`
	OrderID string   `xml:"orderId"`
	Name    string   `xml:"recipientName"`
	Address string   `xml:"recipientAddress"`
	Phone   string   `xml:"recipientPhone"`
	Zipcode string   `xml:"recipientZipcode"`
	Region  string   `xml:"recipientRegion"`
	Weight  string   `xml:"weightKg"`
}

func (g *Geniki) CreateVoucher(ctx context.Context, req VoucherRequest) (string, error) {
	key, err := g.authenticate(ctx)
	if err != nil {
		return "", err
	}

	raw, err := g.call(ctx, "CreateJob", genikiCreateJob{
		NS:      genikiNS,
		AuthKey: key,
		OrderID: req.OrderRef,
		Name:    req.RecipientName,
		Address: req.Address,
		Phone:   req.Phone,
		Zipcode: req.Zipcode,
		Region:  req.Region,
		Weight:  strconv.FormatFloat(req.WeightKg, 'f', 2, 64),
	})
	if err != nil {
		return "", err
	}

	voucher := findElement(raw, "Voucher")
	if voucher == "" {
		return "", fmt.Errorf("courier: geniki: voucher creation failed")
	}
	return voucher, nil
}

// Quote returns a flat-rate quote; Geniki prices are contractual, not
// exposed by the voucher API.
func (g *Geniki) Quote(ctx context.Context, destination string, weightKg float64) (*Quote, error) {
	cost := decimal.NewFromFloat(4.50)
	if weightKg > 2 {
		extra := decimal.NewFromFloat(0.90).Mul(decimal.NewFromFloat(weightKg - 2).Ceil())
		cost = cost.Add(extra)
	}
	return &Quote{Method: "Geniki Standard", Cost: cost, Days: 3}, nil
}

// findElement pulls the character data of the first element with the given
// local name, namespace-agnostically; the service's response schemas only
// need single leaf values.
func findElement(raw []byte, local string) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == local {
			var v string
			if err := dec.DecodeElement(&v, &start); err != nil {
				return ""
			}
			return v
		}
	}
}

var _ Courier = (*Geniki)(nil)
