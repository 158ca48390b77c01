package validate

// User-facing texts, Persian only.
const (
	MsgNameRequired    = "لطفاً نام خود را وارد کنید."
	MsgNameScript      = "لطفا نام خود را به فارسی وارد کنید."
	MsgNameTooShort    = "نام وارد شده صحیح نیست."
	MsgEmailRequired   = "ایمیل خود را وارد کنید."
	MsgEmailInvalid    = "ایمیل وارد شده صحیح نیست."
	MsgMessageRequired = "پیام خود را وارد کنید."
	MsgMessageTooShort = "متن پیام باید حداقل ۳۰ کاراکتر باشد."
	MsgMessageBlank    = "لطفا پیام خود را بصورت صحیح بنویسید."
	MsgCaptchaRequired = "لطفا تایید کنید که ربات نیستید!"
)
