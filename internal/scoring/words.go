package scoring

// VOC/CRM vocabulary used by LexicalSentiment.
var PositiveWords = []string{
	"좋다", "만족", "해결", "완료", "성공", "긍정", "향상", "개선", "신속", "안정",
	"친절", "감사", "추천", "신뢰", "정상", "빠르다", "정확", "유익", "도움", "협조",
	"적극", "안전", "청결", "편리", "효율", "믿음", "기쁨", "감동", "쾌적", "원활",
	"정리", "수월", "적합", "적시", "유연", "성실", "정직", "책임", "존중", "배려",
}

var NegativeWords = []string{
	"불만", "지연", "실패", "문제", "부정", "악화", "지속", "미해결", "오류", "불편",
	"불친절", "불신", "불량", "지체", "누락", "파손", "불가", "불안", "불확실", "불성실",
	"불합리", "불공정", "불쾌", "불만족", "불이행", "불통", "불평", "불충분", "불완전",
	"불일치", "불허", "불법", "불합격", "불응", "불가피", "불가항력", "불가결", "불가분",
	"불가사리", "불가사의", "불가촉", "불가피성",
}
