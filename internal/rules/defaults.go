package rules

import (
	"regexp"

	"emailmanager/internal"
)

var defaultAllow = []SenderRule{
	// exam bodies
	{Pattern: "britishcouncil", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "ielts", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "ets.org", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "toefl", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "neea.edu.cn", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "neea.cn", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "chsi.com.cn", Category: internal.CategoryExam, Importance: 5},
	{Pattern: "mba.com", Category: internal.CategoryExam, Importance: 5},

	// banks
	{Pattern: "cmbchina.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "招商银行", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "icbc.com.cn", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "工商银行", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "ccb.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "建设银行", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "bankcomm.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "交通银行", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "boc.cn", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "中国银行", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "abchina.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "spdb.com.cn", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "citicbank.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "cmbc.com.cn", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "cebbank.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "pingan.com", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "cgbchina.com.cn", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "citibank", Category: internal.CategoryBilling, Importance: 3},
	{Pattern: "hsbc", Category: internal.CategoryBilling, Importance: 3},
}

var defaultDeny = []string{
	// cloud marketing
	"aliyun", "alibabacloud", "alibaba-inc", "tencentcloud", "cloud.tencent", "huaweicloud", "volcengine",
	// bulk mail infrastructure
	"mailchimp", "mcsv.net", "rsgsv.net", "sendgrid", "mailgun", "amazonses", "sparkpostmail",
	"noreply", "no-reply", "newsletter", "marketing", "promotion", "advertising", "mailer-daemon", "postmaster",
	// predatory publishers and reprint vendors
	"scirp.org", "omicsonline", "sciencepublishinggroup", "waset.org", "davidpublisher",
	"hilarispublisher", "longdom", "iosrjournals", "ijsr.net", "copyright.com",
	// known marketing senders
	"technium", "playcanvas", "extrabux", "insta360",
}

var defaultExamWords = []string{
	"ielts", "toefl", "雅思", "托福", "准考证", "成绩单", "成绩报告", "考试通知", "考场",
	"admission ticket", "score report", "test taker", "四六级", "cet-4", "cet-6",
}

var defaultExamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bgre\b`),
	regexp.MustCompile(`(?i)\bgmat\b`),
}

var defaultAdPhrases = []string{
	"reprint", "offprint", "order copies", "order your copies", "order print copies",
	"citation alert", "new citation", "nearing publication", "重印本",
}

func Default() *Engine {
	return New(defaultAllow, defaultDeny, defaultExamWords, defaultExamPatterns, defaultAdPhrases)
}
