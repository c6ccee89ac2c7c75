package convo

import (
	"fmt"

	"shopbot/internal/catalog"
)

// Menu labels.
const (
	LabelShop     = "فروشگاه 🛒"
	LabelTopUp    = "افزایش موجودی 💳"
	LabelGiftCode = "کد هدیه 🛍"
	LabelAccount  = "حساب کاربری 🔖"
	LabelSupport  = "👥پشتیبانی"
	LabelVIP      = "خرید پک VIP 🎬"
	LabelBack     = "بازگشت"

	LabelAdminNewProduct  = "محصول جدید"
	LabelAdminDelProduct  = "حذف محصول"
	LabelAdminCreateCode  = "ساخت کد هدیه"
	LabelAdminAddCoins    = "اهدای سکه"
	LabelAdminRemoveCoins = "کم کردن سکه"

	giftCodeKeyword = "کد هدیه"
	noopCallback    = "noop"
)

// PaymentLink is a top-up pack and the page that sells it.
type PaymentLink struct {
	Coins int64
	URL   string
}

func textRows(rows ...[]string) [][]Button {
	out := make([][]Button, 0, len(rows))
	for _, row := range rows {
		buttons := make([]Button, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, Button{Label: label})
		}
		out = append(out, buttons)
	}
	return out
}

func mainKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardMain, Rows: textRows(
		[]string{LabelShop, LabelTopUp},
		[]string{LabelGiftCode, LabelAccount},
		[]string{LabelSupport, LabelVIP},
	)}
}

func backKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardBack, Rows: textRows([]string{LabelBack})}
}

func adminKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardAdmin, Rows: textRows(
		[]string{LabelAdminNewProduct, LabelAdminDelProduct},
		[]string{LabelAdminCreateCode, LabelAdminAddCoins},
		[]string{LabelAdminRemoveCoins},
		[]string{LabelBack},
	)}
}

func vipKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardVIP, Rows: textRows(
		[]string{"1", "2", "3"},
		[]string{"4", "5", "6"},
		[]string{"7", "8", "9"},
		[]string{LabelBack},
	)}
}

func productKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardProduct, Rows: textRows(
		[]string{LabelShop, LabelTopUp},
		[]string{LabelBack},
	)}
}

func shopKeyboard(products []catalog.Product) *Keyboard {
	rows := make([][]string, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []string{p.Title})
	}
	rows = append(rows, []string{LabelBack})
	return &Keyboard{Kind: KeyboardShop, Rows: textRows(rows...)}
}

func topUpKeyboard(links []PaymentLink) *Keyboard {
	kb := &Keyboard{Kind: KeyboardTopUp, Inline: true}
	for _, link := range links {
		label := fmt.Sprintf("💰 %d سکه", link.Coins)
		if link.URL == "" {
			kb.Rows = append(kb.Rows, []Button{{Label: label + " (لینک تنظیم نشده)", Data: noopCallback}})
			continue
		}
		kb.Rows = append(kb.Rows, []Button{{Label: label, URL: link.URL}})
	}
	return kb
}
