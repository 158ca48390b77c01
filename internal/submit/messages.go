package submit

import "fmt"

const (
	ErrorTitle   = "خطا"
	SuccessTitle = "توجه"
	SuccessText  = "پیام شما را دریافت کردیم و به زودی از طریق ایمیل ثبت شده به آن پاسخ خواهیم داد."

	MsgSendFailed  = "مشکلی در روند ارسال پیام رخ داد! لطفا بعدا دوباره امتحان کنید."
	MsgNotVerified = "تایید کپچا انجام نشد! لطفا دوباره تایید کنید که ربات نیستید."

	SupportAddress = "info@asanrooz.ir"
)

// QuarantineMessage tells the visitor how long to wait and where to write
// instead.
func QuarantineMessage(minutes int) string {
	return "برای جلوگیری از شلوغی سرور، هر کاربر نهایتا ۳ پیام میتواند برای ما ارسال کند!\n" +
		fmt.Sprintf("در صورتی که قصد ارسال پیام بیشتر دارید می‌توانید %d دقیقه دیگر مجدد امتحان کنید یا اینکه با %s تماس بگیرید.", minutes, SupportAddress)
}
