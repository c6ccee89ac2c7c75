package convo

import (
	"fmt"
	"html"
	"strings"

	"shopbot/internal/catalog"
)

const (
	msgCancelled      = "✅ عملیات لغو شد."
	msgUnknown        = "دستور/متن مورد نظر یافت نشد."
	msgUnauthorized   = "⛔️ شما دسترسی ادمین ندارید."
	msgTryAgain       = "⚠️ خطای موقت رخ داد. لطفاً دوباره تلاش کنید."
	msgPaymentMissing = "لینک پرداخت هنوز تنظیم نشده است."
	msgAdminPanel     = "پنل مدیریت باز شد:"
	msgDone           = "✅ انجام شد."
	msgNoProducts     = "فعلاً محصولی ثبت نشده است."
	msgShopHeader     = "🛒 <b>محصولات</b>\n\nبرای مشاهده جزئیات روی نام محصول بزنید:"
	msgEnterCode      = "کد موردنظر را ارسال کنید:"
	msgInvalidCode    = "کد وارد شده نامعتبر است."
	msgVIPInvalid     = "فقط عدد 1 تا 9 را ارسال کنید یا «بازگشت»."
	msgBuyMissing     = "محصول در سیستم موجود نیست."

	msgAskTitle       = "عنوان محصول را ارسال کنید:"
	msgEmptyTitle     = "عنوان نمی‌تواند خالی باشد."
	msgAskDesc        = "توضیحات محصول را ارسال کنید:"
	msgAskLink        = "لینک تحویل/موفق (مثلاً لینک دانلود یا لینک دسترسی قانونی) را ارسال کنید:"
	msgAskPrice       = "قیمت (به سکه) را فقط عدد ارسال کنید:"
	msgBadPrice       = "قیمت باید عدد مثبت باشد."
	msgDuplicateTitle = "محصولی با این عنوان وجود دارد. عملیات لغو شد."
	msgTitleTaken     = "محصولی با این عنوان وجود دارد. عنوان دیگری ارسال کنید:"
	msgAskDelID       = "آیدی محصول را ارسال کنید (مثلاً 3):"
	msgBadID          = "آیدی نامعتبر است."
	msgDeleted        = "✅ محصول حذف شد."
	msgDelMissing     = "محصول پیدا نشد."
	msgAskCode        = "کد و مقدار را ارسال کنید:\nمثال:\n<code>ABC123 50</code>"
	msgBadCodeFormat  = "فرمت اشتباه است.\nمثال:\n<code>ABC123 50</code>"
	msgBadCodeValue   = "مقدار باید عدد مثبت باشد."
	msgAskGrant       = "فرمت:\n<code>USERID COINS</code>\nمثال:\n<code>123456789 20</code>"
	msgAskRevoke      = "فرمت:\n<code>USERID COINS</code>\nمثال:\n<code>123456789 10</code>"
	msgBadPairFormat  = "فرمت اشتباه است.\nمثال:\n<code>123456789 20</code>"
	msgBadPairValues  = "مقادیر نامعتبر هستند."

	msgTransferUsage = "فرمت انتقال:\n<code>/transfer USERID AMOUNT</code>"
	msgTransferMin   = "مقدار انتقال باید حداقل 1 باشد."
	msgTransferSelf  = "انتقال به حساب خودتان ممکن نیست."
	msgBalanceLimit  = "موجودی از سقف مجاز بیشتر می‌شود. عملیات انجام نشد."
)

func welcomeText(botName string) string {
	var b strings.Builder
	b.WriteString("سلام، خوش آمدید.\n\n")
	if botName != "" {
		b.WriteString("<b>" + html.EscapeString(botName) + "</b>\n")
	}
	b.WriteString("این یک ربات فروشگاه دیجیتال است.\n")
	b.WriteString("از منوی زیر بخش موردنظر را انتخاب کنید.")
	return b.String()
}

func referralText(bonus int64) string {
	return fmt.Sprintf("یک نفر از طریق لینک شما وارد ربات شد ✅\n+%d سکه برای شما ثبت شد.", bonus)
}

func accountText(ev Event, balance int64) string {
	name := ev.DisplayName
	if name == "" {
		name = "کاربر"
	}
	username := "—"
	if ev.Username != "" {
		username = "@" + ev.Username
	}
	return fmt.Sprintf("👤 <b>حساب کاربری</b>\n\nنام: <b>%s</b>\nیوزرنیم: <b>%s</b>\nموجودی سکه: <b>%d</b>\nشناسه شما: <code>%d</code>",
		html.EscapeString(name), html.EscapeString(username), balance, ev.UserID)
}

func supportText(handle string) string {
	if handle == "" {
		handle = "@YourSupportID"
	}
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	return "👥 <b>پشتیبانی</b>\n\n" +
		"قبل از پیام دادن:\n" +
		"1) سوال تکراری نپرسید\n" +
		"2) اسپم نکنید\n" +
		"3) درخواست غیرمنطقی ارسال نکنید\n\n" +
		"آیدی پشتیبانی:\n" +
		"<b>" + html.EscapeString(handle) + "</b>"
}

func topUpText(userID int64) string {
	return "💳 <b>افزایش موجودی</b>\n\n" +
		"100 سکه = 100 تومان\n" +
		"200 سکه با 10% تخفیف = 180 تومان\n" +
		"300 سکه با 15% تخفیف = 255 تومان\n" +
		"400 سکه با 20% تخفیف = 320 تومان\n" +
		"640 سکه با 25% تخفیف = 480 تومان\n" +
		"960 سکه با 30% تخفیف = 672 تومان\n\n" +
		"⚠️ حتماً در پرداخت، شناسه زیر را در بخش «شناسه/کد/توضیحات» وارد کنید:\n" +
		fmt.Sprintf("<code>%d</code>\n\n", userID) +
		"یکی از گزینه‌های زیر را برای پرداخت انتخاب کنید:"
}

const vipText = "🎬 <b>خرید پک VIP</b>\n\n" +
	"یکی از پک‌های زیر را انتخاب کنید:\n" +
	"1- مجموعه پک‌های #VIP\n" +
	"2- مجموعه پک‌های #فیلم\n" +
	"3- مجموعه پک‌های #ایرانی 🇮🇷\n" +
	"4- مجموعه پک‌های #اقتصادی\n" +
	"5- مجموعه پک‌های #ترکی\n" +
	"6- مجموعه پک‌های #دوبله\n" +
	"7- مجموعه پک‌های VIP 2\n" +
	"8- مجموعه پک‌های فیلم VIP\n" +
	"9- مجموعه پک‌های تخفیف ویژه\n\n" +
	"عدد را ارسال کنید (1 تا 9)."

func vipChosenText(n int) string {
	return fmt.Sprintf("✅ انتخاب شما: <b>%d</b>\n\nمحصولات این دسته را از «%s» مشاهده کنید.", n, LabelShop)
}

func productText(p catalog.Product) string {
	return fmt.Sprintf("🧾 <b>نام محصول:</b> %s\n\n📌 <b>توضیحات:</b>\n%s\n\n💰 <b>قیمت:</b> %d سکه\n\n✅ برای خرید:\n<code>/buy%d</code>",
		html.EscapeString(p.Title), html.EscapeString(p.Description), p.Price, p.ID)
}

func purchaseText(p catalog.Product, balance int64) string {
	return fmt.Sprintf("✅ خرید با موفقیت انجام شد.\n\nلینک تحویل:\n%s\n\nموجودی جدید: <b>%d</b>", html.EscapeString(p.Link), balance)
}

func insufficientText(balance, price int64) string {
	return fmt.Sprintf("❌ موجودی شما کافی نیست.\nموجودی: <b>%d</b>\nقیمت: <b>%d</b>", balance, price)
}

func redeemedText(value, balance int64) string {
	return fmt.Sprintf("✅ موجودی شما به مقدار <b>%d</b> افزایش یافت.\nموجودی جدید: <b>%d</b>", value, balance)
}

func productCreatedText(id int64) string {
	return fmt.Sprintf("✅ محصول ثبت شد.\nآیدی محصول: <b>%d</b>", id)
}

func codeCreatedText(code string, value int64) string {
	return fmt.Sprintf("✅ کد ساخته شد:\nکد: <code>%s</code>\nمقدار: <b>%d</b> سکه", html.EscapeString(code), value)
}

func grantedText(amount int64) string {
	return fmt.Sprintf("✅ <b>%d</b> سکه به حساب شما اضافه شد.", amount)
}

func revokedText(amount int64) string {
	return fmt.Sprintf("⚠️ <b>%d</b> سکه از حساب شما کم شد.", amount)
}

func revokeShortText(userID, balance int64) string {
	return fmt.Sprintf("❌ موجودی کاربر <code>%d</code> کافی نیست.\nموجودی: <b>%d</b>", userID, balance)
}

func transferSentText(to, amount int64) string {
	return fmt.Sprintf("✅ انتقال انجام شد.\n<b>%d</b> سکه به <code>%d</code> ارسال شد.", amount, to)
}

func transferReceivedText(from, amount int64) string {
	return fmt.Sprintf("✅ <b>%d</b> سکه از طرف <code>%d</code> برای شما واریز شد.", amount, from)
}

func transferShortText(balance int64) string {
	return fmt.Sprintf("موجودی شما کافی نیست.\nموجودی: <b>%d</b>", balance)
}
