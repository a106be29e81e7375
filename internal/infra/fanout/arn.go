package fanout

import "strings"

const arnPrefix = "arn:nats:stream:"

// ProtocolQueue is the only subscription protocol: delivery into a queue.
const ProtocolQueue = "sqs"

func StreamARN(name string) string {
	return arnPrefix + name
}

// NameFromARN returns the resource name of an ARN or URL: the part after the
// last ':' or '/'.
func NameFromARN(arn string) string {
	if i := strings.LastIndexAny(arn, ":/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}

func QueueURL(serverURL, name string) string {
	return strings.TrimRight(serverURL, "/") + "/" + name
}

func SubscriptionARN(topicARN, queueName string) string {
	return topicARN + ":" + queueName
}
