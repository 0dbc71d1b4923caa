// Package promptpay builds Thai PromptPay (EMVCo merchant-presented) QR payloads.
package promptpay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const (
	aid             = "A000000677010111"
	countryCode     = "TH"
	currencyTHB     = "764"
	tagPayloadFmt   = "00"
	tagPOIMethod    = "01"
	tagMerchantInfo = "29"
	tagCountry      = "58"
	tagCurrency     = "53"
	tagAmount       = "54"
	tagCRC          = "63"

	poiStatic  = "11"
	poiDynamic = "12"

	subAID     = "00"
	subPhone   = "01"
	subTaxID   = "02"
	subEWallet = "03"
)

// ErrInvalidID is returned for identifiers that are not a phone number, tax id or e-wallet id.
var ErrInvalidID = errors.New("promptpay: invalid id")

// Payload returns the QR payload for id. A positive amount produces a dynamic QR with the
// amount embedded; zero produces a static QR.
func Payload(id string, amount decimal.Decimal) (string, error) {
	target, sub, err := formatTarget(id)
	if err != nil {
		return "", err
	}
	poi := poiStatic
	if amount.IsPositive() {
		poi = poiDynamic
	}

	var b strings.Builder
	b.WriteString(field(tagPayloadFmt, "01"))
	b.WriteString(field(tagPOIMethod, poi))
	b.WriteString(field(tagMerchantInfo, field(subAID, aid)+field(sub, target)))
	b.WriteString(field(tagCountry, countryCode))
	b.WriteString(field(tagCurrency, currencyTHB))
	if amount.IsPositive() {
		b.WriteString(field(tagAmount, amount.StringFixed(2)))
	}
	b.WriteString(tagCRC + "04")
	data := b.String()
	return data + fmt.Sprintf("%04X", CRC16([]byte(data))), nil
}

// PNG renders the payload for id and amount as a QR code image of the given pixel size.
func PNG(id string, amount decimal.Decimal, size int) ([]byte, error) {
	payload, err := Payload(id, amount)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

func formatTarget(id string) (string, string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, id)
	switch {
	case len(digits) == 10 && digits[0] == '0':
		// mobile numbers are sent as 0066 + number without the trunk prefix, left padded to 13
		return "0066" + digits[1:], subPhone, nil
	case len(digits) == 13:
		return digits, subTaxID, nil
	case len(digits) == 15:
		return digits, subEWallet, nil
	}
	return "", "", ErrInvalidID
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// CRC16 computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
