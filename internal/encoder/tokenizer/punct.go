package tokenizer

var punctuationTable [128]bool

func init() {
	// ASCII punctuation:
	// [33, 47] - ! " # $ % & ' ( ) * + , - . /
	// [58, 64] - : ; < = > ? @
	// [91, 96] - [ \ ] ^ _ `
	// [123, 126] - { | } ~
	for i := 0; i < 128; i++ {
		if (i >= 33 && i <= 47) || (i >= 58 && i <= 64) || (i >= 91 && i <= 96) || (i >= 123 && i <= 126) {
			punctuationTable[i] = true
		}
	}
}
